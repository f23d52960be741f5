package hook

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/dshills/hookstorm/cache"
	"github.com/dshills/hookstorm/extension"
)

// fakeSource is a minimal ExtensionSource for dispatcher tests. Include
// loads run a callback (typically registering callables) and are memoized
// the way the registry memoizes them, with a count of real loads.
type fakeSource struct {
	extensions []*extension.Extension
	includes   map[string]func()
	memo       map[string]bool
	loadCounts map[string]int
}

func newFakeSource(names ...string) *fakeSource {
	s := &fakeSource{
		includes:   make(map[string]func()),
		memo:       make(map[string]bool),
		loadCounts: make(map[string]int),
	}
	for _, name := range names {
		s.extensions = append(s.extensions, &extension.Extension{Name: name})
	}
	return s
}

func (s *fakeSource) Loaded() []*extension.Extension { return s.extensions }

func (s *fakeSource) Exists(name string) bool {
	for _, ext := range s.extensions {
		if ext.Name == name {
			return true
		}
	}
	return false
}

func (s *fakeSource) LoadInclude(name, kind, label string) (string, bool) {
	key := name + ":" + kind + ":" + label
	if ok, done := s.memo[key]; done {
		return label + "." + kind, ok
	}
	fn, ok := s.includes[key]
	if !ok {
		s.memo[key] = false
		return "", false
	}
	s.loadCounts[key]++
	fn()
	s.memo[key] = true
	return label + "." + kind, true
}

// addInclude declares that the file <label>.<kind> exists for an extension
// and runs fn when it is first loaded.
func (s *fakeSource) addInclude(name, label string, fn func()) {
	s.includes[name+":lua:"+label] = fn
}

func returning(value any) Callable {
	return func(args ...any) (any, error) { return value, nil }
}

func TestDispatcherInvokeAllOrder(t *testing.T) {
	source := newFakeSource("a", "b", "c")
	callables := NewCallables()
	callables.Register("a_collect", returning([]any{"a"}))
	callables.Register("c_collect", returning([]any{"c"}))
	d := NewDispatcher(source, callables)

	merged, err := d.InvokeAll("collect")
	if err != nil {
		t.Fatalf("InvokeAll failed: %v", err)
	}
	want := []any{"a", "c"}
	if !reflect.DeepEqual(merged.List, want) {
		t.Errorf("List = %v, want %v", merged.List, want)
	}
}

func TestDispatcherInvoke(t *testing.T) {
	source := newFakeSource("a")
	callables := NewCallables()
	callables.Register("a_greet", func(args ...any) (any, error) {
		return "hi " + args[0].(string), nil
	})
	d := NewDispatcher(source, callables)

	result, ok, err := d.Invoke("a", "greet", "there")
	if err != nil || !ok {
		t.Fatalf("Invoke = (%v, %v, %v)", result, ok, err)
	}
	if result != "hi there" {
		t.Errorf("result = %v, want hi there", result)
	}

	_, ok, err = d.Invoke("b", "greet")
	if err != nil {
		t.Fatalf("Invoke of non-implementer failed: %v", err)
	}
	if ok {
		t.Error("non-implementer should report ok=false")
	}
}

func TestDispatcherInvokeErrorPropagates(t *testing.T) {
	source := newFakeSource("a")
	callables := NewCallables()
	wantErr := errors.New("boom")
	callables.Register("a_fail", func(args ...any) (any, error) {
		return nil, wantErr
	})
	d := NewDispatcher(source, callables)

	_, ok, err := d.Invoke("a", "fail")
	if !ok {
		t.Error("implementer should report ok=true even on error")
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}

	if _, err := d.InvokeAll("fail"); !errors.Is(err, wantErr) {
		t.Errorf("InvokeAll err = %v, want %v", err, wantErr)
	}
}

func TestDispatcherHasImplementations(t *testing.T) {
	source := newFakeSource("a", "b")
	callables := NewCallables()
	callables.Register("a_example", returning(nil))
	d := NewDispatcher(source, callables)

	ok, err := d.HasImplementations("example")
	if err != nil || !ok {
		t.Fatalf("HasImplementations(example) = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = d.HasImplementations("nothing")
	if err != nil || ok {
		t.Fatalf("HasImplementations(nothing) = (%v, %v), want (false, nil)", ok, err)
	}

	ok, err = d.HasImplementations("example", "b", "a")
	if err != nil || !ok {
		t.Fatalf("HasImplementations(example, b, a) = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = d.HasImplementations("example", "b")
	if err != nil || ok {
		t.Fatalf("HasImplementations(example, b) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestDispatcherBuildsOncePerHook(t *testing.T) {
	source := newFakeSource("a", "b")
	callables := NewCallables()
	infoCalls := 0
	callables.Register("a_hook_info", func(args ...any) (any, error) {
		infoCalls++
		return map[string]any{}, nil
	})
	callables.Register("a_example", returning(nil))
	d := NewDispatcher(source, callables)

	for i := 0; i < 3; i++ {
		names, err := d.Implementations("example")
		if err != nil {
			t.Fatalf("Implementations failed: %v", err)
		}
		if !reflect.DeepEqual(names, []string{"a"}) {
			t.Errorf("names = %v, want [a]", names)
		}
	}
	if infoCalls != 1 {
		t.Errorf("hook info collected %d times, want 1", infoCalls)
	}

	// A callable registered after the record is built stays invisible until
	// the caches are invalidated.
	callables.Register("b_example", returning(nil))
	names, _ := d.Implementations("example")
	if !reflect.DeepEqual(names, []string{"a"}) {
		t.Errorf("names after late registration = %v, want [a]", names)
	}

	d.Invalidate()
	names, _ = d.Implementations("example")
	if !reflect.DeepEqual(names, []string{"a", "b"}) {
		t.Errorf("names after Invalidate = %v, want [a b]", names)
	}
}

func TestDispatcherIncludeGroups(t *testing.T) {
	source := newFakeSource("a", "b")
	callables := NewCallables()
	callables.Register("a_example", returning([]any{"a"}))
	callables.Register("b_hook_info", returning(map[string]any{
		"example": map[string]any{"group": "custom"},
	}))
	source.addInclude("b", "b.custom", func() {
		callables.Register("b_example", returning([]any{"b"}))
	})
	backend := cache.NewMemory()
	d := NewDispatcher(source, callables, WithBackend(backend))

	for i := 0; i < 2; i++ {
		merged, err := d.InvokeAll("example")
		if err != nil {
			t.Fatalf("InvokeAll failed: %v", err)
		}
		if !reflect.DeepEqual(merged.List, []any{"a", "b"}) {
			t.Errorf("List = %v, want [a b]", merged.List)
		}
	}
	if n := source.loadCounts["b:lua:b.custom"]; n != 1 {
		t.Errorf("b.custom.lua loaded %d times, want 1", n)
	}

	if err := d.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	data, ok, err := backend.Get(cache.KeyHookImplements)
	if err != nil || !ok {
		t.Fatalf("backend read = (%v, %v)", ok, err)
	}
	blob := gjson.ParseBytes(data)
	if got := blob.Get("example.a"); got.Type != gjson.False {
		t.Errorf("persisted example.a = %v, want false", got)
	}
	if got := blob.Get("example.b").String(); got != "custom" {
		t.Errorf("persisted example.b = %q, want custom", got)
	}
}

func TestDispatcherVerifyHealsStaleEntries(t *testing.T) {
	backend := cache.NewMemory()
	// ghost was removed from disk, stale lost its callable; both must be
	// dropped silently.
	seed := []byte(`{"example":{"ghost":false,"a":false,"stale":false}}`)
	if err := backend.Set(cache.KeyHookImplements, seed); err != nil {
		t.Fatal(err)
	}

	source := newFakeSource("a", "stale")
	callables := NewCallables()
	callables.Register("a_example", returning(nil))
	d := NewDispatcher(source, callables, WithBackend(backend))

	names, err := d.Implementations("example")
	if err != nil {
		t.Fatalf("Implementations failed: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"a"}) {
		t.Errorf("names = %v, want [a]", names)
	}

	if err := d.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	data, _, _ := backend.Get(cache.KeyHookImplements)
	entry := gjson.GetBytes(data, "example")
	if entry.Get("ghost").Exists() || entry.Get("stale").Exists() {
		t.Errorf("healed store still lists dropped entries: %s", data)
	}
	if !entry.Get("a").Exists() {
		t.Errorf("healed store lost the live entry: %s", data)
	}
}

func TestDispatcherVerifyLoadsIncludes(t *testing.T) {
	backend := cache.NewMemory()
	seed := []byte(`{"example":{"a":false,"b":"custom"}}`)
	if err := backend.Set(cache.KeyHookImplements, seed); err != nil {
		t.Fatal(err)
	}

	// Fresh context: main files are loaded but b's include is not yet.
	source := newFakeSource("a", "b")
	callables := NewCallables()
	callables.Register("a_example", returning(nil))
	source.addInclude("b", "b.custom", func() {
		callables.Register("b_example", returning(nil))
	})
	d := NewDispatcher(source, callables, WithBackend(backend))

	names, err := d.Implementations("example")
	if err != nil {
		t.Fatalf("Implementations failed: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"a", "b"}) {
		t.Errorf("names = %v, want [a b]", names)
	}
	if n := source.loadCounts["b:lua:b.custom"]; n != 1 {
		t.Errorf("include loaded %d times during verification, want 1", n)
	}
}

func TestDispatcherEmptyHookCached(t *testing.T) {
	backend := cache.NewMemory()
	source := newFakeSource("a")
	callables := NewCallables()
	infoCalls := 0
	callables.Register("a_hook_info", func(args ...any) (any, error) {
		infoCalls++
		return map[string]any{}, nil
	})
	d := NewDispatcher(source, callables, WithBackend(backend))

	ok, err := d.HasImplementations("nobody")
	if err != nil || ok {
		t.Fatalf("HasImplementations = (%v, %v), want (false, nil)", ok, err)
	}
	if err := d.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	// A second context reads the negative result without scanning.
	d2 := NewDispatcher(source, callables, WithBackend(backend))
	ok, err = d2.HasImplementations("nobody")
	if err != nil || ok {
		t.Fatalf("second context HasImplementations = (%v, %v)", ok, err)
	}
	if infoCalls != 1 {
		t.Errorf("hook info collected %d times, want 1 (cached empty record should skip the scan)", infoCalls)
	}
}

func TestDispatcherImplementsAlterReorders(t *testing.T) {
	source := newFakeSource("a", "b", "orderer")
	callables := NewCallables()
	callables.Register("a_example", returning([]any{"a"}))
	callables.Register("b_example", returning([]any{"b"}))
	callables.Register("orderer_implements_alter", func(args ...any) (any, error) {
		if args[1] != "example" {
			return nil, nil
		}
		list := args[0].(*[]any)
		for i, j := 0, len(*list)-1; i < j; i, j = i+1, j-1 {
			(*list)[i], (*list)[j] = (*list)[j], (*list)[i]
		}
		return nil, nil
	})
	d := NewDispatcher(source, callables)

	merged, err := d.InvokeAll("example")
	if err != nil {
		t.Fatalf("InvokeAll failed: %v", err)
	}
	if !reflect.DeepEqual(merged.List, []any{"b", "a"}) {
		t.Errorf("List = %v, want [b a]", merged.List)
	}
}

func TestDispatcherImplementsAlterRemoves(t *testing.T) {
	source := newFakeSource("a", "b", "censor")
	callables := NewCallables()
	callables.Register("a_example", returning(nil))
	callables.Register("b_example", returning(nil))
	callables.Register("censor_implements_alter", func(args ...any) (any, error) {
		list := args[0].(*[]any)
		kept := (*list)[:0]
		for _, item := range *list {
			if item.(map[string]any)["extension"] != "b" {
				kept = append(kept, item)
			}
		}
		*list = kept
		return nil, nil
	})
	d := NewDispatcher(source, callables)

	names, err := d.Implementations("example")
	if err != nil {
		t.Fatalf("Implementations failed: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"a"}) {
		t.Errorf("names = %v, want [a]", names)
	}
}

func TestDispatcherFabricatedImplementation(t *testing.T) {
	source := newFakeSource("a", "phantom", "evil")
	callables := NewCallables()
	callables.Register("a_example", returning(nil))
	callables.Register("evil_implements_alter", func(args ...any) (any, error) {
		if args[1] != "example" {
			return nil, nil
		}
		list := args[0].(*[]any)
		*list = append(*list, map[string]any{"extension": "phantom", "group": false})
		return nil, nil
	})
	d := NewDispatcher(source, callables)

	_, err := d.Implementations("example")
	var fab *FabricatedImplementationError
	if !errors.As(err, &fab) {
		t.Fatalf("err = %v, want FabricatedImplementationError", err)
	}
	if fab.Hook != "example" || fab.Extension != "phantom" {
		t.Errorf("error names (%q, %q), want (example, phantom)", fab.Hook, fab.Extension)
	}
}

func TestDispatcherAlterMutatesMap(t *testing.T) {
	source := newFakeSource("a", "b")
	callables := NewCallables()
	callables.Register("a_form_alter", func(args ...any) (any, error) {
		form := args[0].(map[string]any)
		form["title"] = "from a"
		form["a_touched"] = true
		return nil, nil
	})
	callables.Register("b_form_alter", func(args ...any) (any, error) {
		form := args[0].(map[string]any)
		form["title"] = "from b"
		return nil, nil
	})
	d := NewDispatcher(source, callables)

	form := map[string]any{"title": "original"}
	if err := d.Alter([]string{"form"}, form, "login", nil); err != nil {
		t.Fatalf("Alter failed: %v", err)
	}
	if form["title"] != "from b" {
		t.Errorf("title = %v, want from b (last alter wins)", form["title"])
	}
	if form["a_touched"] != true {
		t.Error("earlier alter's addition was lost")
	}
}

func TestDispatcherAlterSliceReference(t *testing.T) {
	source := newFakeSource("a")
	callables := NewCallables()
	callables.Register("a_items_alter", func(args ...any) (any, error) {
		items := args[0].(*[]any)
		*items = append(*items, "added")
		return nil, nil
	})
	d := NewDispatcher(source, callables)

	items := []any{"first"}
	if err := d.Alter([]string{"items"}, &items, nil, nil); err != nil {
		t.Fatalf("Alter failed: %v", err)
	}
	if !reflect.DeepEqual(items, []any{"first", "added"}) {
		t.Errorf("items = %v, want [first added]", items)
	}
}

func TestDispatcherAlterMemoizesFunctionList(t *testing.T) {
	source := newFakeSource("a", "b")
	callables := NewCallables()
	calls := 0
	callables.Register("a_form_alter", func(args ...any) (any, error) {
		calls++
		return nil, nil
	})
	d := NewDispatcher(source, callables)

	if err := d.Alter([]string{"form"}, map[string]any{}, nil, nil); err != nil {
		t.Fatal(err)
	}
	// Registered after resolution; must not run until invalidation.
	callables.Register("b_form_alter", func(args ...any) (any, error) {
		t.Error("late-registered alter ran against a memoized list")
		return nil, nil
	})
	if err := d.Alter([]string{"form"}, map[string]any{}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("a_form_alter ran %d times, want 2", calls)
	}
}

func TestDispatcherAlterDeduplicatesKinds(t *testing.T) {
	source := newFakeSource("a")
	callables := NewCallables()
	calls := 0
	callables.Register("a_widget_alter", func(args ...any) (any, error) {
		calls++
		return nil, nil
	})
	d := NewDispatcher(source, callables)

	if err := d.Alter([]string{"widget", "widget"}, nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("handler ran %d times for duplicated kinds, want 1", calls)
	}
}

func TestDispatcherAlterErrorPropagates(t *testing.T) {
	source := newFakeSource("a")
	callables := NewCallables()
	wantErr := errors.New("alter failed")
	callables.Register("a_form_alter", func(args ...any) (any, error) {
		return nil, wantErr
	})
	d := NewDispatcher(source, callables)

	if err := d.Alter([]string{"form"}, map[string]any{}, nil, nil); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}

func TestDispatcherInvalidateClearsBackend(t *testing.T) {
	backend := cache.NewMemory()
	source := newFakeSource("a")
	callables := NewCallables()
	callables.Register("a_example", returning(nil))
	d := NewDispatcher(source, callables, WithBackend(backend))

	if _, err := d.Implementations("example"); err != nil {
		t.Fatal(err)
	}
	if err := d.Flush(); err != nil {
		t.Fatal(err)
	}
	d.Invalidate()

	if _, ok, _ := backend.Get(cache.KeyHookImplements); ok {
		t.Error("implementation store should be cleared by Invalidate")
	}
	if _, ok, _ := backend.Get(cache.KeyHookInfo); ok {
		t.Error("hook info store should be cleared by Invalidate")
	}
}

// warnRecorder captures Warnf calls, discarding the rest.
type warnRecorder struct {
	warnings []string
}

func (w *warnRecorder) Debugf(format string, args ...any) {}
func (w *warnRecorder) Infof(format string, args ...any)  {}
func (w *warnRecorder) Warnf(format string, args ...any) {
	w.warnings = append(w.warnings, fmt.Sprintf(format, args...))
}
func (w *warnRecorder) Errorf(format string, args ...any) {}

func TestDispatcherDeprecatedHookLogs(t *testing.T) {
	source := newFakeSource("a")
	callables := NewCallables()
	callables.Register("a_old_example", returning([]any{"still here"}))
	rec := &warnRecorder{}
	d := NewDispatcher(source, callables, WithLogger(rec))

	merged, err := d.InvokeAllDeprecated("use example instead", "old_example")
	if err != nil {
		t.Fatalf("InvokeAllDeprecated failed: %v", err)
	}
	if !reflect.DeepEqual(merged.List, []any{"still here"}) {
		t.Errorf("List = %v", merged.List)
	}
	if len(rec.warnings) != 1 || !strings.Contains(rec.warnings[0], "a") ||
		!strings.Contains(rec.warnings[0], "use example instead") {
		t.Errorf("warnings = %v, want one naming extension a and the description", rec.warnings)
	}
}

func TestDispatcherDeprecatedHookSilentWhenUnimplemented(t *testing.T) {
	source := newFakeSource("a")
	callables := NewCallables()
	rec := &warnRecorder{}
	d := NewDispatcher(source, callables, WithLogger(rec))

	if _, err := d.InvokeAllDeprecated("gone", "old_example"); err != nil {
		t.Fatal(err)
	}
	if len(rec.warnings) != 0 {
		t.Errorf("warnings = %v, want none for an unimplemented hook", rec.warnings)
	}
}
