package placement

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/wippyai/wasm-loader/errors"
	"github.com/wippyai/wasm-loader/target"
)

func payload(n int) []byte {
	b := make([]byte, n)
	r := rand.New(rand.NewSource(int64(n)))
	r.Read(b)
	return b
}

var sizes = []int{0, 1, 2, 3, 100, 14 * 1024, 14*1024 + 1, 1 << 20}

func TestDecideZeroThresholdAlwaysExternal(t *testing.T) {
	p := Policy{Env: target.Auto, MaxInlineSize: 0}
	for _, n := range sizes {
		d, a, err := p.Decide(Input{Path: "/src/a.wasm", Bytes: payload(n)})
		if err != nil {
			t.Fatalf("len %d: %v", n, err)
		}
		if d.Kind != External || a == nil {
			t.Errorf("len %d: got %v, want external", n, d.Kind)
		}
	}
}

func TestDecideSyncAlwaysInline(t *testing.T) {
	for _, env := range target.Envs {
		for _, max := range []int64{0, 1, DefaultMaxInlineSize} {
			p := Policy{Env: env, MaxInlineSize: max}
			for _, n := range sizes {
				data := payload(n)
				d, a, err := p.Decide(Input{Path: "/a.wasm", Bytes: data, Request: Request{Sync: true}})
				if err != nil {
					t.Fatalf("%s/%d/%d: %v", env, max, n, err)
				}
				if d.Kind != Inline || d.Mode != Sync || a != nil {
					t.Errorf("%s/%d/%d: got %v/%v", env, max, n, d.Kind, d.Mode)
				}
				if err := d.Validate("/a.wasm"); err != nil {
					t.Errorf("Validate: %v", err)
				}
			}
		}
	}
}

func TestDecideThreshold(t *testing.T) {
	const threshold = 1024
	p := Policy{Env: target.Auto, MaxInlineSize: threshold}
	for _, n := range []int{1, 512, threshold - 1, threshold, threshold + 1, 4 * threshold} {
		d, _, err := p.Decide(Input{Path: "/a.wasm", Bytes: payload(n)})
		if err != nil {
			t.Fatalf("len %d: %v", n, err)
		}
		want := Inline
		if n > threshold {
			want = External
		}
		if d.Kind != want {
			t.Errorf("len %d: got %v, want %v", n, d.Kind, want)
		}
		if d.Mode != Async {
			t.Errorf("len %d: mode %v, want async", n, d.Mode)
		}
	}
}

func TestDecideAutoInline(t *testing.T) {
	p := Policy{Env: target.AutoInline, MaxInlineSize: 0}
	d, a, err := p.Decide(Input{Path: "/a.wasm", Bytes: payload(1 << 20)})
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != Inline || a != nil {
		t.Errorf("auto-inline should inline, got %v", d.Kind)
	}
}

func TestInlineRoundTrip(t *testing.T) {
	p := Policy{Env: target.Auto, MaxInlineSize: 1 << 21}
	for _, n := range sizes[1:] {
		data := payload(n)
		d, _, err := p.Decide(Input{Path: "/a.wasm", Bytes: data})
		if err != nil {
			t.Fatal(err)
		}
		got, err := Decode(d.Encoded)
		if err != nil {
			t.Fatalf("len %d: decode: %v", n, err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("len %d: round trip mismatch", n)
		}
	}
}

func TestDecideURL(t *testing.T) {
	data := payload(64)

	t.Run("inline placement is a usage error", func(t *testing.T) {
		p := Policy{Env: target.Auto, MaxInlineSize: DefaultMaxInlineSize}
		_, _, err := p.Decide(Input{Path: "/a.wasm", Bytes: data, Request: Request{URL: true}})
		if !stderrors.Is(err, errors.ErrUsage) {
			t.Fatalf("expected usage error, got %v", err)
		}
		if !strings.Contains(err.Error(), "url") || !strings.Contains(err.Error(), "/a.wasm") {
			t.Errorf("message should name modifier and asset: %v", err)
		}
	})

	t.Run("auto-inline target is a usage error", func(t *testing.T) {
		p := Policy{Env: target.AutoInline}
		_, _, err := p.Decide(Input{Path: "/a.wasm", Bytes: data, Request: Request{URL: true}})
		if !stderrors.Is(err, errors.ErrUsage) {
			t.Fatalf("expected usage error, got %v", err)
		}
	})

	t.Run("external placement", func(t *testing.T) {
		p := Policy{Env: target.Browser, MaxInlineSize: 0, PublicPath: "/assets/"}
		d, a, err := p.Decide(Input{Path: "/a.wasm", Bytes: data, Request: Request{URL: true}})
		if err != nil {
			t.Fatal(err)
		}
		if d.Kind != External || a == nil {
			t.Fatalf("got %v", d.Kind)
		}
		if d.PublicPath != "/assets/"+Hash(data)+".wasm" {
			t.Errorf("PublicPath = %q", d.PublicPath)
		}
	})

	t.Run("prior external decision", func(t *testing.T) {
		prior := &Artifact{Source: "/a.wasm", FileName: "x.wasm", PublicPath: "/p/x.wasm", Bytes: data}
		p := Policy{Env: target.Auto, MaxInlineSize: DefaultMaxInlineSize}
		d, a, err := p.Decide(Input{Path: "/a.wasm", Bytes: data, Request: Request{URL: true}, Prior: prior})
		if err != nil {
			t.Fatal(err)
		}
		if d.Kind != External || d.PublicPath != "/p/x.wasm" || a != prior {
			t.Errorf("got %+v", d)
		}
	})
}

func TestDecideSyncURLConflict(t *testing.T) {
	p := Policy{Env: target.Auto}
	_, _, err := p.Decide(Input{Path: "/a.wasm", Request: Request{Sync: true, URL: true}})
	if !stderrors.Is(err, errors.ErrUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || len(e.Modifiers) != 2 {
		t.Fatalf("expected both modifiers named, got %v", err)
	}
}

func TestDecisionValidate(t *testing.T) {
	d := Decision{Kind: External, Mode: Sync, FileName: "a.wasm", PublicPath: "a.wasm"}
	if err := d.Validate("/a.wasm"); !stderrors.Is(err, errors.ErrSyncExternalConflict) {
		t.Errorf("expected sync/external conflict, got %v", err)
	}
	if err := (Decision{Kind: External}).Validate("/a.wasm"); err == nil {
		t.Error("expected error for external decision without name")
	}
	if err := (Decision{Kind: Inline, Mode: Sync, Encoded: "AA=="}).Validate("/a.wasm"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFileName(t *testing.T) {
	data := []byte("hello")
	hash := Hash(data)
	if len(hash) != HashLength {
		t.Fatalf("hash length = %d", len(hash))
	}
	if hash != "aaf4c61ddcc5e8a2" {
		t.Errorf("Hash = %q", hash)
	}

	tests := []struct {
		template string
		want     string
	}{
		{DefaultFileName, hash + ".wasm"},
		{"[name].[hash][extname]", "math." + hash + ".wasm"},
		{"wasm/[name]-[name][extname]", "wasm/math-math.wasm"},
		{"static", "static"},
		{"./a/../[name].bin", "math.bin"},
	}
	for _, tt := range tests {
		got, err := FileName(tt.template, "/src/lib/math.wasm", data)
		if err != nil {
			t.Errorf("FileName(%q): %v", tt.template, err)
			continue
		}
		if got != tt.want {
			t.Errorf("FileName(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}

	for _, bad := range []string{"", "   ", ".", "../[hash]", "/abs/[hash]"} {
		if _, err := FileName(bad, "/src/math.wasm", data); err == nil {
			t.Errorf("FileName(%q) should fail", bad)
		}
	}
}

func TestIdenticalContentSharesFileName(t *testing.T) {
	p := Policy{Env: target.Browser, MaxInlineSize: 0, PublicPath: "/"}
	data := payload(32)
	d1, _, err := p.Decide(Input{Path: "/a/one.wasm", Bytes: data})
	if err != nil {
		t.Fatal(err)
	}
	d2, _, err := p.Decide(Input{Path: "/b/two.wasm", Bytes: data})
	if err != nil {
		t.Fatal(err)
	}
	if d1.FileName != d2.FileName {
		t.Errorf("file names differ: %q vs %q", d1.FileName, d2.FileName)
	}
}

func TestRequestModifiers(t *testing.T) {
	r := Request{Init: true, Sync: true}
	if got := strings.Join(r.Modifiers(), ","); got != "init,sync" {
		t.Errorf("Modifiers = %q", got)
	}
	if r.Mode() != Sync || (Request{}).Mode() != Async {
		t.Error("Mode mismatch")
	}
}

func TestTable(t *testing.T) {
	tbl := NewTable()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			src := fmt.Sprintf("/src/%02d.wasm", i%10)
			tbl.Put(&Artifact{Source: src, FileName: src, Bytes: []byte{byte(i % 10)}})
		}(i)
	}
	wg.Wait()

	if tbl.Len() != 10 {
		t.Fatalf("Len = %d, want 10", tbl.Len())
	}
	if a, ok := tbl.Get("/src/03.wasm"); !ok || a.Bytes[0] != 3 {
		t.Errorf("Get = %+v, %v", a, ok)
	}

	drained := tbl.Drain()
	if len(drained) != 10 {
		t.Fatalf("Drain returned %d", len(drained))
	}
	for i := 1; i < len(drained); i++ {
		if drained[i-1].Source >= drained[i].Source {
			t.Errorf("not sorted: %q >= %q", drained[i-1].Source, drained[i].Source)
		}
	}
	if tbl.Len() != 0 {
		t.Errorf("table not reset, Len = %d", tbl.Len())
	}
	if len(tbl.Drain()) != 0 {
		t.Error("second drain should be empty")
	}
}
