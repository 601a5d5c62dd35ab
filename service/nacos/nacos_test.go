package nacos

import (
	"errors"
	"testing"

	"github.com/nacos-group/nacos-sdk-go/v2/vo"
)

type fakeSource struct {
	content   string
	err       error
	listener  func(namespace, group, dataId, data string)
	cancelled bool
}

func (f *fakeSource) GetConfig(p vo.ConfigParam) (string, error) { return f.content, f.err }

func (f *fakeSource) ListenConfig(p vo.ConfigParam) error {
	f.listener = p.OnChange
	return nil
}

func (f *fakeSource) CancelListenConfig(p vo.ConfigParam) error {
	f.cancelled = true
	return nil
}

func TestWatcher(t *testing.T) {
	src := &fakeSource{content: "log: {level: info}"}
	w := NewWatcher(src, "pp-realtime.yaml", "DEFAULT_GROUP")

	got, err := w.Fetch()
	if err != nil || got != src.content || w.Current() != src.content {
		t.Fatalf("fetch: %q %v", got, err)
	}

	var pushed string
	if err := w.Watch(func(c string) { pushed = c }); err != nil {
		t.Fatal(err)
	}
	src.listener("public", "DEFAULT_GROUP", "pp-realtime.yaml", "log: {level: debug}")
	if pushed != "log: {level: debug}" || w.Current() != pushed {
		t.Fatalf("pushed = %q current = %q", pushed, w.Current())
	}

	_ = w.Stop()
	if !src.cancelled {
		t.Fatal("listener not cancelled")
	}

	src.err = errors.New("nacos down")
	if _, err := w.Fetch(); err == nil {
		t.Fatal("fetch error swallowed")
	}
}

type fakeNamer struct {
	reg   *vo.RegisterInstanceParam
	dereg *vo.DeregisterInstanceParam
	ok    bool
}

func (n *fakeNamer) RegisterInstance(p vo.RegisterInstanceParam) (bool, error) {
	n.reg = &p
	return n.ok, nil
}

func (n *fakeNamer) DeregisterInstance(p vo.DeregisterInstanceParam) (bool, error) {
	n.dereg = &p
	return n.ok, nil
}

func TestRegistry(t *testing.T) {
	n := &fakeNamer{ok: true}
	r := NewRegistry(n, "pp-realtime", "10.0.0.5", 8080, map[string]string{"node": "gw-1"})
	if err := r.Register(); err != nil {
		t.Fatal(err)
	}
	if n.reg.Ip != "10.0.0.5" || n.reg.Port != 8080 || !n.reg.Ephemeral || n.reg.Metadata["node"] != "gw-1" {
		t.Fatalf("register param = %+v", n.reg)
	}
	if err := r.Deregister(); err != nil || n.dereg.ServiceName != "pp-realtime" {
		t.Fatalf("deregister: %v", err)
	}

	n.ok = false
	if err := r.Register(); err == nil {
		t.Fatal("rejected registration must fail")
	}
	if err := r.Deregister(); err != nil {
		t.Fatal("missing instance on deregister is only logged")
	}
}
