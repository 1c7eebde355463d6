package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"github.com/askcorpus/askcorpus/internal/chunk"
	"github.com/askcorpus/askcorpus/internal/embed"
	"github.com/askcorpus/askcorpus/internal/extract"
	"github.com/askcorpus/askcorpus/internal/index"
	"github.com/askcorpus/askcorpus/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeGenerator struct {
	text     string
	err      error
	calls    int
	lastHits []index.Hit
}

func (f *fakeGenerator) Generate(ctx context.Context, question string, hits []index.Hit) (string, error) {
	f.calls++
	f.lastHits = hits
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type serviceFixture struct {
	svc *Service
	emb *embed.Mock
	idx *index.Memory
	gen *fakeGenerator
}

func newServiceFixture(t *testing.T, dim int) *serviceFixture {
	t.Helper()

	emb := embed.NewMock(dim)
	idx, err := index.NewMemory(dim, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	retriever, err := NewRetriever(emb, idx, 10, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	gate, err := NewGate(0.3, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	splitter, err := chunk.NewSplitter(120, 20)
	if err != nil {
		t.Fatal(err)
	}
	gen := &fakeGenerator{text: "To open an account, submit your PAN and complete KYC."}

	svc, err := NewService(ServiceParams{
		Extractor: extract.NewExtractor(nil, log.NewNop()),
		Splitter:  splitter,
		Embedder:  emb,
		Index:     idx,
		Retriever: retriever,
		Gate:      gate,
		Generator: gen,
		Logger:    log.NewNop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return &serviceFixture{svc: svc, emb: emb, idx: idx, gen: gen}
}

// vectorWithSimilarity builds a unit vector whose normalized cosine
// similarity against the query direction [1,0] equals s.
func vectorWithSimilarity(s float64) []float32 {
	cos := 2*s - 1
	sin := 1 - cos*cos
	if sin < 0 {
		sin = 0
	}
	return []float32{float32(cos), float32(math.Sqrt(sin))}
}

func seedChunk(t *testing.T, idx *index.Memory, docID string, seq int, similarity float64) {
	t.Helper()
	err := idx.Upsert(context.Background(), []index.Entry{{
		ChunkID:    ChunkID(docID, seq),
		DocumentID: docID,
		Locator:    "https://support.example.com/" + docID,
		SourceType: "web",
		Title:      "Support article " + docID,
		Seq:        seq,
		Content:    "relevant support content",
		Vector:     vectorWithSimilarity(similarity),
	}})
	if err != nil {
		t.Fatal(err)
	}
}

func TestQuery_HighConfidenceAnswers(t *testing.T) {
	f := newServiceFixture(t, 2)
	f.emb.Fixed = map[string][]float32{"how do I open an account": {1, 0}}
	seedChunk(t, f.idx, "doc_kyc", 0, 0.8)

	ans, err := f.svc.Query(context.Background(), "how do I open an account")
	if err != nil {
		t.Fatal(err)
	}

	if ans.IsFallback {
		t.Fatal("high-confidence query fell back")
	}
	if ans.Answer != f.gen.text {
		t.Errorf("answer = %q", ans.Answer)
	}
	if diff := ans.Confidence - 0.8; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("confidence = %f, want 0.8", ans.Confidence)
	}
	if len(ans.Sources) != 1 {
		t.Fatalf("got %d sources, want 1", len(ans.Sources))
	}
	if ans.Sources[0].Locator != "https://support.example.com/doc_kyc" {
		t.Errorf("source locator = %q", ans.Sources[0].Locator)
	}
	if f.gen.calls != 1 {
		t.Errorf("generator called %d times", f.gen.calls)
	}
}

func TestQuery_LowConfidenceFallsBack(t *testing.T) {
	f := newServiceFixture(t, 2)
	f.emb.Fixed = map[string][]float32{"what is the meaning of life": {1, 0}}
	seedChunk(t, f.idx, "doc_kyc", 0, 0.1)

	ans, err := f.svc.Query(context.Background(), "what is the meaning of life")
	if err != nil {
		t.Fatal(err)
	}

	if !ans.IsFallback {
		t.Fatal("low-confidence query must fall back")
	}
	if ans.Answer != FallbackAnswer {
		t.Errorf("answer = %q, want the fallback literal", ans.Answer)
	}
	if len(ans.Sources) != 0 {
		t.Errorf("fallback carried %d sources", len(ans.Sources))
	}
	if f.gen.calls != 0 {
		t.Error("generator must not run for a fallback")
	}
}

func TestQuery_EmptyCorpusFallsBackWithZeroConfidence(t *testing.T) {
	f := newServiceFixture(t, 2)
	f.emb.Fixed = map[string][]float32{"anything": {1, 0}}

	ans, err := f.svc.Query(context.Background(), "anything")
	if err != nil {
		t.Fatal(err)
	}
	if !ans.IsFallback || ans.Confidence != 0 {
		t.Errorf("empty corpus: got %+v, want fallback with confidence 0", ans)
	}
}

func TestQuery_ThresholdOverride(t *testing.T) {
	f := newServiceFixture(t, 2)
	f.emb.Fixed = map[string][]float32{"question": {1, 0}}
	seedChunk(t, f.idx, "doc_kyc", 0, 0.5)

	ans, err := f.svc.Query(context.Background(), "question", WithThreshold(0.9))
	if err != nil {
		t.Fatal(err)
	}
	if !ans.IsFallback {
		t.Error("raised threshold must force a fallback")
	}

	ans, err = f.svc.Query(context.Background(), "question", WithThreshold(0.2))
	if err != nil {
		t.Fatal(err)
	}
	if ans.IsFallback {
		t.Error("lowered threshold must answer")
	}
}

func TestQuery_GenerationErrorIsTerminal(t *testing.T) {
	f := newServiceFixture(t, 2)
	f.emb.Fixed = map[string][]float32{"question": {1, 0}}
	seedChunk(t, f.idx, "doc_kyc", 0, 0.8)
	f.gen.err = fmt.Errorf("%w: model unavailable", ErrSynthesis)

	ans, err := f.svc.Query(context.Background(), "question")
	if !errors.Is(err, ErrSynthesis) {
		t.Errorf("got %v, want ErrSynthesis", err)
	}
	if ans != nil {
		t.Error("a generation failure must not produce a fallback answer")
	}
}

func TestQuery_EmbedErrorIsTerminal(t *testing.T) {
	f := newServiceFixture(t, 2)
	f.emb.Err = errors.New("provider down")

	_, err := f.svc.Query(context.Background(), "question")
	if err == nil {
		t.Fatal("expected error when query embedding fails")
	}
}

func TestQuery_EmptyQuestion(t *testing.T) {
	f := newServiceFixture(t, 2)

	_, err := f.svc.Query(context.Background(), "  ")
	if !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("got %v, want ErrEmptyQuestion", err)
	}
}

func supportPage(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><title>Account Help</title></head><body><article>%s</article></body></html>`, body)
	}
}

func TestIngest_WebDocument(t *testing.T) {
	body := strings.Repeat("<p>To open a trading account you need a PAN card, an Aadhaar card, and a cancelled cheque for bank verification. Processing takes two working days.</p>", 4)
	server := httptest.NewServer(supportPage(body))
	defer server.Close()

	f := newServiceFixture(t, 64)
	ctx := context.Background()

	result, err := f.svc.Ingest(ctx, DocumentRef{Locator: server.URL, SourceType: "web"})
	if err != nil {
		t.Fatal(err)
	}

	if result.DocumentID != DocumentID(server.URL) {
		t.Errorf("document ID = %q", result.DocumentID)
	}
	if result.Chunks < 2 {
		t.Errorf("chunks = %d, want several for a long page", result.Chunks)
	}

	n, _ := f.idx.Count(ctx)
	if n != result.Chunks {
		t.Errorf("index holds %d entries, result says %d", n, result.Chunks)
	}

	// Re-ingesting replaces rather than duplicates.
	again, err := f.svc.Ingest(ctx, DocumentRef{Locator: server.URL, SourceType: "web"})
	if err != nil {
		t.Fatal(err)
	}
	n, _ = f.idx.Count(ctx)
	if n != again.Chunks {
		t.Errorf("index holds %d entries after re-ingest, want %d", n, again.Chunks)
	}
}

func TestIngest_ExtractionFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	f := newServiceFixture(t, 64)

	_, err := f.svc.Ingest(context.Background(), DocumentRef{Locator: server.URL, SourceType: "web"})
	if !errors.Is(err, extract.ErrExtraction) {
		t.Errorf("got %v, want ErrExtraction", err)
	}
}

func TestIngestAll_SkipsExtractionFailures(t *testing.T) {
	good := httptest.NewServer(supportPage(strings.Repeat("<p>Margin requirements are listed in the funds section of the app.</p>", 4)))
	defer good.Close()
	bad := httptest.NewServer(http.NotFoundHandler())
	defer bad.Close()

	f := newServiceFixture(t, 64)

	report, err := f.svc.IngestAll(context.Background(), []DocumentRef{
		{Locator: good.URL, SourceType: "web"},
		{Locator: bad.URL, SourceType: "web"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(report.Ingested) != 1 {
		t.Errorf("ingested %d documents, want 1", len(report.Ingested))
	}
	if len(report.Failures) != 1 {
		t.Fatalf("recorded %d failures, want 1", len(report.Failures))
	}
	if report.Failures[0].Locator != bad.URL {
		t.Errorf("failure locator = %q", report.Failures[0].Locator)
	}
}

func TestIngestAll_EmbeddingFailureAborts(t *testing.T) {
	server := httptest.NewServer(supportPage(strings.Repeat("<p>Brokerage charges are visible on the orders page.</p>", 4)))
	defer server.Close()

	f := newServiceFixture(t, 64)
	f.emb.Err = fmt.Errorf("%w: quota exhausted", embed.ErrEmbedding)

	_, err := f.svc.IngestAll(context.Background(), []DocumentRef{
		{Locator: server.URL, SourceType: "web"},
	})
	if !errors.Is(err, embed.ErrEmbedding) {
		t.Errorf("got %v, want ErrEmbedding to abort the batch", err)
	}
}

func TestDelete(t *testing.T) {
	f := newServiceFixture(t, 2)
	ctx := context.Background()
	seedChunk(t, f.idx, DocumentID("https://support.example.com/a"), 0, 0.5)

	if err := f.svc.Delete(ctx, "https://support.example.com/a"); err != nil {
		t.Fatal(err)
	}
	n, _ := f.idx.Count(ctx)
	if n != 0 {
		t.Errorf("index holds %d entries after delete", n)
	}
}

func TestCollectSources(t *testing.T) {
	hits := []index.Hit{
		{Entry: index.Entry{ChunkID: "a:0", DocumentID: "a", Locator: "la", Title: "A"}, Similarity: 0.9},
		{Entry: index.Entry{ChunkID: "b:0", DocumentID: "b", Locator: "lb", Title: "B"}, Similarity: 0.8},
		{Entry: index.Entry{ChunkID: "a:3", DocumentID: "a", Locator: "la", Title: "A"}, Similarity: 0.7},
	}

	sources := collectSources(hits)
	if len(sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(sources))
	}
	if sources[0].Locator != "la" || sources[0].Similarity != 0.9 {
		t.Errorf("sources[0] = %+v", sources[0])
	}
	if sources[1].Locator != "lb" {
		t.Errorf("sources[1] = %+v", sources[1])
	}
}

func TestBuildPrompt(t *testing.T) {
	hits := []index.Hit{
		{Entry: index.Entry{Title: "Account Help", Content: "PAN is required.", Locator: "https://internal"}, Similarity: 0.9},
	}

	prompt := buildPrompt("what documents do I need", hits)
	if !strings.Contains(prompt, "PAN is required.") {
		t.Error("prompt missing chunk content")
	}
	if !strings.Contains(prompt, "Account Help") {
		t.Error("prompt missing title")
	}
	if !strings.Contains(prompt, "Question: what documents do I need") {
		t.Error("prompt missing question")
	}
	if strings.Contains(prompt, "https://internal") {
		t.Error("prompt leaks locator")
	}
}
