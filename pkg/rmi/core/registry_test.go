package core

import (
	"reflect"
	"testing"
	"time"

	"github.com/jabolina/go-rmi/pkg/rmi/types"
	"github.com/pkg/errors"
)

type exported struct {
	hits int
}

func (e *exported) Bump() int {
	e.hits++
	return e.hits
}

func TestExports_PublishRejectsReservedPrefix(t *testing.T) {
	exports := testExports("reserved")
	if err := exports.Publish("#nope", &exported{}); errors.Cause(err) != types.ErrReservedName {
		t.Fatalf("expected reserved name error, found %v", err)
	}
	if err := exports.Publish("", &exported{}); errors.Cause(err) != types.ErrReservedName {
		t.Fatalf("expected reserved name error, found %v", err)
	}
}

func TestExports_PublishRejectsRebinding(t *testing.T) {
	exports := testExports("rebind")
	if err := exports.Publish("svc", &exported{}); err != nil {
		t.Fatalf("failed publishing. %v", err)
	}
	if err := exports.Publish("svc", &exported{}); errors.Cause(err) != types.ErrNameBound {
		t.Fatalf("expected name bound error, found %v", err)
	}
}

func TestExports_ExportIsIdempotent(t *testing.T) {
	exports := testExports("idempotent")
	object := &exported{}
	first, err := exports.Export(object)
	if err != nil {
		t.Fatalf("failed exporting. %v", err)
	}
	second, err := exports.Export(object)
	if err != nil {
		t.Fatalf("failed exporting twice. %v", err)
	}
	if first != second {
		t.Fatalf("expected stable id, found %s and %s", first, second)
	}
	if first[0] != '#' {
		t.Fatalf("expected reserved prefix, found %s", first)
	}
	sk := exports.Lookup(first)
	if sk == nil || sk.Object() != object {
		t.Fatalf("auto id should resolve to the object")
	}
}

func TestExports_DistinctObjectsNeverMerge(t *testing.T) {
	exports := testExports("identity")
	a, b := &exported{}, &exported{}
	idA, _ := exports.Export(a)
	idB, _ := exports.Export(b)
	if idA == idB {
		t.Fatalf("two objects share the id %s", idA)
	}
}

func TestExports_UnpublishRemovesAllAliases(t *testing.T) {
	exports := testExports("unpublish")
	object := &exported{}
	if err := exports.Publish("one", object); err != nil {
		t.Fatalf("failed publishing. %v", err)
	}
	if err := exports.Publish("two", object); err != nil {
		t.Fatalf("failed publishing alias. %v", err)
	}
	exports.Unpublish("one")
	if exports.Lookup("one") != nil || exports.Lookup("two") != nil {
		t.Fatal("expected every alias removed")
	}
	if exports.ByObject(object) != nil {
		t.Fatal("expected the unreferenced skeleton released")
	}
}

func TestExports_SweepSparesPinnedAndReferenced(t *testing.T) {
	exports := testExports("sweep")
	pinned := &exported{}
	if err := exports.Publish("pinned", pinned); err != nil {
		t.Fatalf("failed publishing. %v", err)
	}
	referenced := &exported{}
	refID, _ := exports.Export(referenced)
	exports.Lookup(refID).AddRef("peer-1")
	forgotten := &exported{}
	if _, err := exports.Export(forgotten); err != nil {
		t.Fatalf("failed exporting. %v", err)
	}

	evicted := exports.Sweep(time.Now().Add(time.Hour), time.Minute)
	if len(evicted) != 1 {
		t.Fatalf("expected a single eviction, found %v", evicted)
	}
	if exports.ByObject(pinned) == nil {
		t.Fatal("pinned skeleton evicted")
	}
	if exports.ByObject(referenced) == nil {
		t.Fatal("referenced skeleton evicted")
	}
	if exports.ByObject(forgotten) != nil {
		t.Fatal("forgotten skeleton survived")
	}
}

type flakyObserver struct {
	calls int
}

func (f *flakyObserver) PeerFault(remote types.Endpoint, cause error) {
	f.calls++
	panic("observer blew up")
}

type countingObserver struct {
	calls int
}

func (c *countingObserver) PeerFault(remote types.Endpoint, cause error) {
	c.calls++
}

func TestExports_BroadcastSurvivesRaisingObserver(t *testing.T) {
	exports := testExports("broadcast")
	flaky := &flakyObserver{}
	counting := &countingObserver{}
	exports.AttachFaultObserver(flaky)
	exports.AttachFaultObserver(counting)

	exports.BroadcastFault(types.Endpoint{Host: "127.0.0.1", Port: 1}, types.ErrDisposed)
	if flaky.calls != 1 || counting.calls != 1 {
		t.Fatalf("expected both observers called once, found %d and %d", flaky.calls, counting.calls)
	}

	exports.DetachFaultObserver(counting)
	exports.BroadcastFault(types.Endpoint{Host: "127.0.0.1", Port: 1}, types.ErrDisposed)
	if counting.calls != 1 {
		t.Fatal("detached observer still called")
	}
}

type marked interface {
	Bump() int
}

func TestExports_RemoteValueIsTransitive(t *testing.T) {
	exports := testExports("remote")
	object := &exported{}
	if _, ok := exports.RemoteValue(object); ok {
		t.Fatal("unmarked value recognized as remote")
	}
	exports.ExportInterface(types.Interface{Name: "Marked", Type: reflect.TypeOf((*marked)(nil)).Elem()})
	if iface, ok := exports.RemoteValue(object); !ok || iface.Name != "Marked" {
		t.Fatalf("marked value not recognized, found %#v", iface)
	}
}
