package embed

import (
	"context"
	"math"
	"testing"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestMock_Deterministic(t *testing.T) {
	m := NewMock(64)
	ctx := context.Background()

	a, err := m.Embed(ctx, []string{"open a trading account"})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := m.Embed(ctx, []string{"open a trading account"})

	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("vectors differ at %d", i)
		}
	}
}

func TestMock_SimilarTextsScoreHigher(t *testing.T) {
	m := NewMock(128)
	ctx := context.Background()

	vecs, err := m.Embed(ctx, []string{
		"how do I open a trading account",
		"opening a trading account requires PAN",
		"the capital of France is Paris",
	})
	if err != nil {
		t.Fatal(err)
	}

	related := cosine(vecs[0], vecs[1])
	unrelated := cosine(vecs[0], vecs[2])
	if related <= unrelated {
		t.Errorf("related similarity %f not above unrelated %f", related, unrelated)
	}
}

func TestMock_FixedOverride(t *testing.T) {
	m := NewMock(3)
	m.Fixed = map[string][]float32{"pinned": {0, 1, 0}}

	vecs, err := m.Embed(context.Background(), []string{"pinned"})
	if err != nil {
		t.Fatal(err)
	}
	if vecs[0][1] != 1 {
		t.Errorf("fixed vector not returned: %v", vecs[0])
	}
}

func TestMock_Normalized(t *testing.T) {
	m := NewMock(32)
	vecs, _ := m.Embed(context.Background(), []string{"some support text here"})

	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("vector not L2-normalized: norm² = %f", norm)
	}
}
