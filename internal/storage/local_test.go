package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "src.parquet")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	ls, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	src := writeTemp(t, "rate data")
	obj := "payer_slug=aetna/state=TX/fact_rate_enriched.parquet"

	if err := ls.Upload(ctx, src, obj); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	exists, err := ls.Exists(ctx, obj)
	if err != nil || !exists {
		t.Fatalf("Exists = %v, %v; want true", exists, err)
	}

	dst := filepath.Join(t.TempDir(), "out.parquet")
	if err := ls.Download(ctx, obj, dst); err != nil {
		t.Fatalf("Download: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "rate data" {
		t.Fatalf("downloaded content = %q, %v", data, err)
	}

	if _, ok := ls.GetETag(obj); !ok {
		t.Error("upload should record a checksum")
	}

	if err := ls.Delete(ctx, obj); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	exists, _ = ls.Exists(ctx, obj)
	if exists {
		t.Error("object should not exist after delete")
	}

	// Deleting again is idempotent
	if err := ls.Delete(ctx, obj); err != nil {
		t.Errorf("second Delete should be nil, got %v", err)
	}
}

func TestLocalStorageDownloadMissing(t *testing.T) {
	ls, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	err = ls.Download(context.Background(), "no/such/object", filepath.Join(t.TempDir(), "x"))
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("err = %v, want ErrObjectNotFound", err)
	}
}

func TestLocalStorageListObjects(t *testing.T) {
	ctx := context.Background()
	ls, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	src := writeTemp(t, "x")
	paths := []string{
		"payer_slug=aetna/state=TX/fact_rate_enriched.parquet",
		"payer_slug=aetna/state=OK/fact_rate_enriched.parquet",
		"payer_slug=uhc/state=TX/fact_rate_enriched.parquet",
	}
	for _, p := range paths {
		if err := ls.Upload(ctx, src, p); err != nil {
			t.Fatal(err)
		}
	}

	objs, err := ls.ListObjects(ctx, "payer_slug=aetna")
	if err != nil {
		t.Fatalf("ListObjects: %v", err)
	}
	if len(objs) != 2 {
		t.Errorf("listed %d objects under aetna, want 2: %v", len(objs), objs)
	}

	objs, err = ls.ListObjects(ctx, "payer_slug=cigna")
	if err != nil {
		t.Fatalf("ListObjects missing prefix: %v", err)
	}
	if len(objs) != 0 {
		t.Errorf("missing prefix should list nothing, got %v", objs)
	}
}

func TestRetryPolicyEventualSuccess(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on third attempt: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryPolicyExhaustion(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2, BaseBackoff: time.Millisecond}
	calls := 0
	sentinel := errors.New("still broken")
	err := p.Do(context.Background(), func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want sentinel", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetryPolicyNoRetryOnNotFound(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseBackoff: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return ErrObjectNotFound
	})
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("not-found should not retry, calls = %d", calls)
	}
}

func TestRetryPolicyContextCancel(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, BaseBackoff: 50 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := p.Do(ctx, func() error {
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
