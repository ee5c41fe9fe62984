package di

import (
	"errors"
	"testing"
)

// countingScope 记录每次经过作用域的请求
type countingScope struct {
	calls  int
	params []Params
}

func (s *countingScope) Get(b *Binding, req *Request) (any, error) {
	s.calls++
	s.params = append(s.params, req.Params)
	return b.CreateDependency(req)
}

func TestSingletonPerParamSet(t *testing.T) {
	in := mustNew(t, engineModule(), ModuleFunc(func(b *Binder) {
		Bind[*Car](b).AsSingleton()
	}))

	blue1, err := Create[*Car](in, Params{"color": "blue"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	blue2, _ := Create[*Car](in, Params{"color": "blue"})
	red, _ := Create[*Car](in, Params{"color": "red"})

	if blue1 != blue2 {
		t.Fatal("same assisted params must return the same singleton")
	}
	if blue1 == red {
		t.Fatal("different assisted params must produce different singletons")
	}

	s, err := in.scopeFor(ScopeSingleton)
	if err != nil {
		t.Fatalf("scopeFor failed: %v", err)
	}
	if n := s.(*SingletonScope).Len(); n != 2 {
		t.Fatalf("singleton cache holds %d entries, want 2", n)
	}
}

func TestSingletonDoesNotCacheNil(t *testing.T) {
	calls := 0
	in := mustNew(t, ModuleFunc(func(b *Binder) {
		Bind[*Radio](b).ToProviderFunc(func(*Injector) (any, error) {
			calls++
			return nil, nil
		}).AsSingleton()
	}))

	for i := 0; i < 2; i++ {
		if _, err := in.GetInstance(KeyOf[*Radio](), nil, true); err != nil {
			t.Fatalf("GetInstance failed: %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("nil results must not be cached, provider called %d times", calls)
	}
}

func TestInstanceScopeCreatesEveryTime(t *testing.T) {
	in := mustNew(t, ModuleFunc(func(b *Binder) {
		Bind[*Radio](b).In(ScopeInstance)
	}))
	if MustGet[*Radio](in) == MustGet[*Radio](in) {
		t.Fatal("instance scope must not cache")
	}
}

func TestCustomScope(t *testing.T) {
	scope := &countingScope{}
	in := mustNew(t, ModuleFunc(func(b *Binder) {
		Bind[*Radio](b).InScope(scope)
	}))

	MustGet[*Radio](in)
	if _, err := in.GetInstance(KeyOf[*Radio](), Params{"station": "fm"}, false); err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}
	if scope.calls != 2 {
		t.Fatalf("custom scope called %d times, want 2", scope.calls)
	}
	if scope.params[1]["station"] != "fm" {
		t.Fatalf("request params not forwarded: %v", scope.params[1])
	}
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		name    string
		want    ScopeKind
		wantErr bool
	}{
		{"singleton", ScopeSingleton, false},
		{" Singleton ", ScopeSingleton, false},
		{"instance", ScopeInstance, false},
		{"transient", ScopeInstance, false},
		{"request", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseScope(tt.name)
		if tt.wantErr {
			var se *InvalidScopeError
			if !errors.As(err, &se) || !errors.Is(err, ErrInvalidScope) {
				t.Errorf("ParseScope(%q) error = %v, want InvalidScopeError", tt.name, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseScope(%q) = %v, %v, want %v", tt.name, got, err, tt.want)
		}
	}
}

func TestUnknownScopeKind(t *testing.T) {
	_, err := New(ModuleFunc(func(b *Binder) {
		Bind[*Radio](b).In(ScopeKind(42))
	}))
	if !errors.Is(err, ErrInvalidScope) {
		t.Fatalf("expected an invalid scope error, got %v", err)
	}

	_, err = New(ModuleFunc(func(b *Binder) {
		Bind[*Radio](b).InScope(nil)
	}))
	if !errors.Is(err, ErrInvalidScope) {
		t.Fatalf("expected an invalid scope error for nil scope, got %v", err)
	}
}

func TestHashParams(t *testing.T) {
	r1 := &Radio{Station: "fm"}
	r2 := &Radio{Station: "fm"}

	if HashParams(nil) != HashParams(Params{}) {
		t.Error("nil and empty params must hash the same")
	}
	if HashParams(Params{"a": 1, "b": "x"}) != HashParams(Params{"b": "x", "a": 1}) {
		t.Error("hash must not depend on insertion order")
	}
	if HashParams(Params{"r": r1}) == HashParams(Params{"r": r2}) {
		t.Error("pointers must hash by identity")
	}
	if HashParams(Params{"r": r1}) != HashParams(Params{"r": r1}) {
		t.Error("the same pointer must hash the same")
	}
	if HashParams(Params{"s": []int{1, 2}}) != HashParams(Params{"s": []int{1, 2}}) {
		t.Error("slices must hash by content")
	}
	if HashParams(Params{"m": map[string]int{"a": 1, "b": 2}}) != HashParams(Params{"m": map[string]int{"b": 2, "a": 1}}) {
		t.Error("maps must hash by sorted content")
	}
	if HashParams(Params{"v": 1}) == HashParams(Params{"v": "1"}) {
		t.Error("values of different types must not collide")
	}
	if HashParams(Params{"v": Radio{Station: "a"}}) == HashParams(Params{"v": Radio{Station: "b"}}) {
		t.Error("structs must hash by field values")
	}
}

func TestHashParamsMixedMapKeys(t *testing.T) {
	want := HashParams(Params{"m": map[any]int{1: 10, "1": 20}})
	for i := 0; i < 200; i++ {
		if got := HashParams(Params{"m": map[any]int{1: 10, "1": 20}}); got != want {
			t.Fatalf("hash of the same map changed on iteration %d", i)
		}
	}
	if want == HashParams(Params{"m": map[any]int{1: 20, "1": 10}}) {
		t.Error("values swapped between keys of different types must not collide")
	}
}

func TestHashParamsSelfReference(t *testing.T) {
	s := []any{nil}
	s[0] = s
	m := map[string]any{}
	m["self"] = m

	if HashParams(Params{"s": s}) != HashParams(Params{"s": s}) {
		t.Error("self-referencing slice must hash deterministically")
	}
	if HashParams(Params{"m": m}) != HashParams(Params{"m": m}) {
		t.Error("self-referencing map must hash deterministically")
	}

	shared := []int{1, 2}
	if HashParams(Params{"a": []any{shared, shared}}) != HashParams(Params{"a": []any{[]int{1, 2}, []int{1, 2}}}) {
		t.Error("a slice repeated without a cycle must hash by content")
	}
}
