package workflow

import "testing"

func TestLookup_AllNewRegistrationStepsExceptReservedAreDefined(t *testing.T) {
	for step := 1; step <= 35; step++ {
		_, defined := Lookup(step)
		if IsReserved(step) {
			if defined {
				t.Errorf("step %d is reserved but has a task template", step)
			}
			continue
		}
		if !defined {
			t.Errorf("step %d is not reserved but has no task template", step)
		}
	}
}

func TestLookup_ReRegistrationEntrySteps(t *testing.T) {
	for _, step := range []int{200, 201, 202} {
		def, ok := Lookup(step)
		if !ok {
			t.Fatalf("step %d should be defined", step)
		}
		if def.Number != step {
			t.Errorf("step %d: Number = %d", step, def.Number)
		}
		if def.Task == "" {
			t.Errorf("step %d: empty task template", step)
		}
	}
}

func TestIsReserved(t *testing.T) {
	for _, step := range []int{17, 25, 26, 27, 31} {
		if !IsReserved(step) {
			t.Errorf("step %d should be reserved", step)
		}
	}
	for _, step := range []int{1, 16, 22, 35, 200} {
		if IsReserved(step) {
			t.Errorf("step %d should not be reserved", step)
		}
	}
}

func TestIsInDeclaredRange(t *testing.T) {
	cases := map[int]bool{
		1: true, 35: true, 36: false, 0: false,
		100: true, 117: true, 118: false, 99: false,
		200: true, 217: true, 218: false,
	}
	for step, want := range cases {
		if got := IsInDeclaredRange(step); got != want {
			t.Errorf("IsInDeclaredRange(%d) = %v, want %v", step, got, want)
		}
	}
}

func TestServerSideSteps(t *testing.T) {
	for _, step := range []int{16, 22} {
		def, ok := Lookup(step)
		if !ok {
			t.Fatalf("step %d should be defined", step)
		}
		if !def.ServerSide {
			t.Errorf("step %d should be marked server-side", step)
		}
	}
}
