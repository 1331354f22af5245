package observability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	b := NoopBuildHooks{}
	b.OnStageStart(ctx, "php@8.2.10", "configure")
	b.OnStageComplete(ctx, "php@8.2.10", "configure", time.Second, nil)
	b.OnRollback(ctx, "php@8.2.10", true)

	d := NoopDownloadHooks{}
	d.OnDownloadStart(ctx, "https://www.php.net/distributions/php-8.2.10.tar.gz", true)
	d.OnDownloadComplete(ctx, "https://www.php.net/distributions/php-8.2.10.tar.gz", 1024, time.Second, nil)
	d.OnMirrorFallback(ctx, "https://mirror.example.com/php/php-8.2.10.tar.gz", errors.New("404"))

	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "artifact")
	c.OnCacheMiss(ctx, "ranking")
	c.OnCacheSet(ctx, "artifact", 1024)

	h := NoopHTTPHooks{}
	h.OnRequest(ctx, "HEAD", "www.php.net", "/distributions/php-8.2.10.tar.gz")
	h.OnResponse(ctx, "HEAD", "www.php.net", "/distributions/php-8.2.10.tar.gz", 200, time.Second)
	h.OnError(ctx, "HEAD", "www.php.net", "/distributions/php-8.2.10.tar.gz", nil)
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()
	defer Reset()

	if _, ok := Build().(NoopBuildHooks); !ok {
		t.Error("Build() should return NoopBuildHooks by default")
	}
	if _, ok := Download().(NoopDownloadHooks); !ok {
		t.Error("Download() should return NoopDownloadHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should return NoopHTTPHooks by default")
	}

	customBuild := &testBuildHooks{}
	SetBuildHooks(customBuild)
	if Build() != customBuild {
		t.Error("SetBuildHooks should set custom hooks")
	}

	customDownload := &testDownloadHooks{}
	SetDownloadHooks(customDownload)
	if Download() != customDownload {
		t.Error("SetDownloadHooks should set custom hooks")
	}

	customCache := &testCacheHooks{}
	SetCacheHooks(customCache)
	if Cache() != customCache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	customHTTP := &testHTTPHooks{}
	SetHTTPHooks(customHTTP)
	if HTTP() != customHTTP {
		t.Error("SetHTTPHooks should set custom hooks")
	}

	Reset()
	if _, ok := Build().(NoopBuildHooks); !ok {
		t.Error("Reset() should restore NoopBuildHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()
	defer Reset()

	custom := &testBuildHooks{}
	SetBuildHooks(custom)
	SetBuildHooks(nil)

	if Build() != custom {
		t.Error("SetBuildHooks(nil) should be ignored")
	}
}

type testBuildHooks struct{ NoopBuildHooks }
type testDownloadHooks struct{ NoopDownloadHooks }
type testCacheHooks struct{ NoopCacheHooks }
type testHTTPHooks struct{ NoopHTTPHooks }
