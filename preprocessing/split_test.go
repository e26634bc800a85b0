package preprocessing

import (
	"sort"
	"testing"
)

func TestTrainTestSplitSizes(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		testSize  float64
		wantTrain int
		wantTest  int
		wantErr   bool
	}{
		{"wine quality", 1599, 0.25, 1199, 400, false},
		{"ceil rounds up", 10, 0.25, 7, 3, false},
		{"two rows", 2, 0.25, 1, 1, false},
		{"single row leaves empty train", 1, 0.25, 0, 0, true},
		{"empty", 0, 0.25, 0, 0, true},
		{"invalid test size", 10, 1.0, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seed := int64(1)
			idx, err := TrainTestSplit(tt.n, tt.testSize, NewRand(&seed))
			if (err != nil) != tt.wantErr {
				t.Fatalf("TrainTestSplit() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(idx.Train) != tt.wantTrain || len(idx.Test) != tt.wantTest {
				t.Errorf("got %d/%d, want %d/%d", len(idx.Train), len(idx.Test), tt.wantTrain, tt.wantTest)
			}

			// train と test は重複なく全行を覆う
			all := append(append([]int{}, idx.Train...), idx.Test...)
			sort.Ints(all)
			for i, v := range all {
				if v != i {
					t.Fatalf("indices are not a permutation: %v", all)
				}
			}
		})
	}
}

func TestTrainTestSplitDeterministicWithSeed(t *testing.T) {
	seed := int64(42)
	a, err := TrainTestSplit(100, DefaultTestSize, NewRand(&seed))
	if err != nil {
		t.Fatal(err)
	}
	b, err := TrainTestSplit(100, DefaultTestSize, NewRand(&seed))
	if err != nil {
		t.Fatal(err)
	}

	for i := range a.Test {
		if a.Test[i] != b.Test[i] {
			t.Fatalf("test indices differ at %d: %d vs %d", i, a.Test[i], b.Test[i])
		}
	}
}
