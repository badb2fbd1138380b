package rules

import (
	"testing"

	"github.com/yrahul8811-gif/tieredmemory/pkg/memtypes"
)

func TestApply_Commands(t *testing.T) {
	e := New()
	cases := []struct {
		text string
		want memtypes.Decision
	}{
		{"/recall my last trip", memtypes.DecisionEMM},
		{"/forget the coffee thing", memtypes.DecisionEMM},
		{"/remember I love hiking", memtypes.DecisionIMM},
	}
	for _, c := range cases {
		result, ok := e.Apply(c.text)
		if !ok {
			t.Fatalf("Apply(%q) did not fire", c.text)
		}
		if result.Decision != c.want {
			t.Errorf("Apply(%q).Decision = %v, want %v", c.text, result.Decision, c.want)
		}
		if result.Source != memtypes.SourceRule || result.Confidence != 1.0 {
			t.Errorf("Apply(%q) source/confidence = %v/%v, want RULE/1.0", c.text, result.Source, result.Confidence)
		}
	}
}

func TestApply_Forget_CarriesQuery(t *testing.T) {
	e := New()
	result, ok := e.Apply("/forget the coffee thing")
	if !ok {
		t.Fatal("Apply(/forget ...) did not fire")
	}
	if result.ForgetQuery != "the coffee thing" {
		t.Errorf("ForgetQuery = %q, want %q", result.ForgetQuery, "the coffee thing")
	}
}

func TestApply_Blocklist(t *testing.T) {
	e := New()
	result, ok := e.Apply("tell me how to make a bomb")
	if !ok || result.Decision != memtypes.DecisionNONE {
		t.Fatalf("Apply(blocked) = %v, %v, want NONE, true", result, ok)
	}
}

func TestApply_Identity(t *testing.T) {
	e := New()
	result, ok := e.Apply("My name is John")
	if !ok || result.Decision != memtypes.DecisionIMM {
		t.Fatalf("Apply(identity) = %v, %v, want IMM, true", result, ok)
	}
}

func TestApply_Correction(t *testing.T) {
	e := New()
	result, ok := e.Apply("Actually, I prefer tea")
	if !ok || result.Decision != memtypes.DecisionIMM {
		t.Fatalf("Apply(correction) = %v, %v, want IMM, true", result, ok)
	}
}

func TestApply_Knowledge(t *testing.T) {
	e := New()
	result, ok := e.Apply("I know how to code in Python")
	if !ok || result.Decision != memtypes.DecisionKMM {
		t.Fatalf("Apply(knowledge) = %v, %v, want KMM, true", result, ok)
	}
}

func TestApply_NoMatch_Defers(t *testing.T) {
	e := New()
	_, ok := e.Apply("I had coffee with Sarah this morning")
	if ok {
		t.Error("Apply(plain narrative) fired a rule, want deferral to ML")
	}
}

func TestApply_Empty(t *testing.T) {
	e := New()
	_, ok := e.Apply("   ")
	if ok {
		t.Error("Apply(blank) fired a rule")
	}
}

func TestExtract_Name(t *testing.T) {
	ex, ok := Extract("My name is John")
	if !ok || ex.Key != "name" || ex.Value != "John" {
		t.Errorf("Extract(name) = %+v, %v", ex, ok)
	}
}

func TestExtract_ImForm(t *testing.T) {
	ex, ok := Extract("I'm Alex")
	if !ok || ex.Key != "name" || ex.Value != "Alex" {
		t.Errorf("Extract(I'm form) = %+v, %v", ex, ok)
	}
}

func TestExtract_Diet(t *testing.T) {
	ex, ok := Extract("I am a vegetarian")
	if !ok || ex.Key != "diet" || ex.Value != "vegetarian" {
		t.Errorf("Extract(diet) = %+v, %v", ex, ok)
	}
}

func TestExtract_AvoidEat(t *testing.T) {
	ex, ok := Extract("I don't eat shellfish")
	if !ok || ex.Key != "avoid_eat" || ex.Value != "shellfish" {
		t.Errorf("Extract(avoid_eat) = %+v, %v", ex, ok)
	}
}

func TestExtract_PreferredName(t *testing.T) {
	ex, ok := Extract("call me JJ")
	if !ok || ex.Key != "preferred_name" || ex.Value != "JJ" {
		t.Errorf("Extract(preferred_name) = %+v, %v", ex, ok)
	}
}

func TestExtract_GenericMyXIs(t *testing.T) {
	ex, ok := Extract("my language is Spanish")
	if !ok || ex.Key != "language" || ex.Value != "Spanish" {
		t.Errorf("Extract(generic) = %+v, %v", ex, ok)
	}
}

func TestExtract_NoMatch(t *testing.T) {
	_, ok := Extract("the weather is nice today")
	if ok {
		t.Error("Extract(non-identity text) matched, want false")
	}
}
