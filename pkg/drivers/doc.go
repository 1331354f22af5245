// Package drivers contains the concrete runtime and extension drivers and
// registers them with a [driver.Registry].
//
// Drivers are composed from small parts instead of being specialized by
// inheritance: a [Runtime] or [Extension] value holds a dependency set, a
// list of [OptionStrategy] functions and a few optional overrides. Each
// platform- or version-specific variant is the common value plus extra
// strategies, registered with the tags it is specialized for.
//
//	reg := driver.NewRegistry()
//	drivers.Register(reg)
//	d, err := driver.NewResolver(reg).Resolve(capability.NewRuntime("8.3.4"), tags)
package drivers
