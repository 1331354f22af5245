package acquire

// Progress receives transfer progress for one download. Implementations
// must be safe for concurrent Add calls, which chunk workers make in
// parallel.
type Progress interface {
	// Start is called once the size is known; total is -1 when it is not.
	Start(url string, total int64)
	Add(n int)
	Finish()
}

// ProgressFunc creates a Progress for each download.
type ProgressFunc func() Progress

type noProgress struct{}

func (noProgress) Start(string, int64) {}
func (noProgress) Add(int)             {}
func (noProgress) Finish()             {}

// progressWriter forwards written byte counts to a Progress.
type progressWriter struct {
	p Progress
}

func (w progressWriter) Write(b []byte) (int, error) {
	w.p.Add(len(b))
	return len(b), nil
}
