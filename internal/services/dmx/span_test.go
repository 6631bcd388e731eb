package dmx

import (
	"errors"
	"testing"
)

func TestPlanUniverses_SingleUniverse(t *testing.T) {
	plan, err := PlanUniverses(1, 0, 9, DefaultUniverseSize)
	if err != nil {
		t.Fatalf("PlanUniverses() error = %v", err)
	}

	if plan.UniverseEnd != 1 {
		t.Errorf("UniverseEnd = %d, want 1", plan.UniverseEnd)
	}
	if len(plan.Spans) != 1 {
		t.Fatalf("len(Spans) = %d, want 1", len(plan.Spans))
	}
	s := plan.Spans[0]
	if s.Universe != 1 || s.DMXStart != 0 || s.DMXEnd != 9 {
		t.Errorf("span = %+v, want universe 1 slots [0,9)", s)
	}
	if s.InputStart != 0 || s.InputEnd != 9 {
		t.Errorf("input = [%d,%d), want [0,9)", s.InputStart, s.InputEnd)
	}
}

func TestPlanUniverses_ExactFit(t *testing.T) {
	// 170 pixels fill a 510 slot universe exactly and must not spill into the next one
	plan, err := PlanUniverses(5, 0, 510, 510)
	if err != nil {
		t.Fatalf("PlanUniverses() error = %v", err)
	}
	if plan.UniverseEnd != 5 {
		t.Errorf("UniverseEnd = %d, want 5", plan.UniverseEnd)
	}
	if plan.Universes() != 1 {
		t.Errorf("Universes() = %d, want 1", plan.Universes())
	}
}

func TestPlanUniverses_OffsetSpill(t *testing.T) {
	plan, err := PlanUniverses(1, 500, 30, 510)
	if err != nil {
		t.Fatalf("PlanUniverses() error = %v", err)
	}

	want := []Span{
		{Universe: 1, DMXStart: 500, DMXEnd: 510, InputStart: 0, InputEnd: 10},
		{Universe: 2, DMXStart: 0, DMXEnd: 20, InputStart: 10, InputEnd: 30},
	}
	if len(plan.Spans) != len(want) {
		t.Fatalf("len(Spans) = %d, want %d", len(plan.Spans), len(want))
	}
	for i, s := range plan.Spans {
		if s != want[i] {
			t.Errorf("Spans[%d] = %+v, want %+v", i, s, want[i])
		}
	}
}

func TestPlanUniverses_Coverage(t *testing.T) {
	for _, size := range []int{1, 3, 170, 510, 512} {
		for _, offset := range []int{0, 1, 2, size / 2, size - 1} {
			if offset < 0 || offset >= size {
				continue
			}
			for _, pixels := range []int{1, 2, 169, 170, 171, 340, 1000} {
				count := pixels * ChannelsPerPixel
				plan, err := PlanUniverses(1, offset, count, size)
				if err != nil {
					t.Fatalf("PlanUniverses(1, %d, %d, %d) error = %v", offset, count, size, err)
				}

				next := 0
				for i, s := range plan.Spans {
					if s.Universe != plan.UniverseStart+i {
						t.Fatalf("size=%d offset=%d pixels=%d: span %d universe %d not contiguous", size, offset, pixels, i, s.Universe)
					}
					if s.InputStart != next {
						t.Fatalf("size=%d offset=%d pixels=%d: span %d starts at %d, want %d", size, offset, pixels, i, s.InputStart, next)
					}
					if s.Len() <= 0 {
						t.Fatalf("size=%d offset=%d pixels=%d: span %d is empty", size, offset, pixels, i)
					}
					if s.DMXStart < 0 || s.DMXEnd > size || s.DMXEnd-s.DMXStart != s.Len() {
						t.Fatalf("size=%d offset=%d pixels=%d: span %d slots [%d,%d) illegal", size, offset, pixels, i, s.DMXStart, s.DMXEnd)
					}
					// absolute slot position of the first channel in this span
					if abs := (s.Universe-plan.UniverseStart)*size + s.DMXStart; abs != offset+s.InputStart {
						t.Fatalf("size=%d offset=%d pixels=%d: span %d at slot %d, want %d", size, offset, pixels, i, abs, offset+s.InputStart)
					}
					next = s.InputEnd
				}
				if next != count {
					t.Errorf("size=%d offset=%d pixels=%d: covered %d channels, want %d", size, offset, pixels, next, count)
				}
			}
		}
	}
}

func TestPlanUniverses_Invalid(t *testing.T) {
	tests := []struct {
		name                        string
		offset, count, universeSize int
	}{
		{"zero universe size", 0, 3, 0},
		{"oversized universe", 0, 3, 513},
		{"no channels", 0, 0, 510},
		{"negative offset", -1, 3, 510},
		{"offset past universe", 510, 3, 510},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PlanUniverses(1, tt.offset, tt.count, tt.universeSize)
			if !errors.Is(err, ErrInvalidPlan) {
				t.Errorf("PlanUniverses() error = %v, want ErrInvalidPlan", err)
			}
		})
	}
}

func TestUniversePlan_Fill(t *testing.T) {
	plan, err := PlanUniverses(1, 508, 6, 510)
	if err != nil {
		t.Fatalf("PlanUniverses() error = %v", err)
	}
	universes := map[int][]byte{}
	if err := plan.Fill([]byte{1, 2, 3, 4, 5, 6}, universes); err != nil {
		t.Fatalf("Fill() error = %v", err)
	}

	if got := universes[1][508:510]; got[0] != 1 || got[1] != 2 {
		t.Errorf("universe 1 tail = %v, want [1 2]", got)
	}
	if got := universes[2][0:4]; got[0] != 3 || got[3] != 6 {
		t.Errorf("universe 2 head = %v, want [3 4 5 6]", got)
	}
	if len(universes[1]) != UniverseSize {
		t.Errorf("buffer size = %d, want %d", len(universes[1]), UniverseSize)
	}

	if err := plan.Fill([]byte{1}, universes); !errors.Is(err, ErrInvalidPlan) {
		t.Errorf("Fill() with short input error = %v, want ErrInvalidPlan", err)
	}
}
