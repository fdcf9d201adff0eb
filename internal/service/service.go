package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"meos/internal/domain"
	"meos/internal/loader"
	"meos/internal/vectorstore"
	"meos/internal/vectorstore/memory"
)

// Service defines the retrieval engine over the personal notes index.
type Service interface {

	// Start loads the persisted index, building and saving it when absent.
	Start(ctx context.Context) error

	// Rebuild rescans the sources and replaces the index and its persisted copy.
	Rebuild(ctx context.Context) (BuildReport, error)

	// CheckStale returns the ids of documents added, removed or changed since
	// the current index was built.
	CheckStale(ctx context.Context) ([]string, error)

	// Answer retrieves the topK chunks most relevant to query and asks the
	// generator for an answer grounded on them.
	Answer(ctx context.Context, query string, topK int) (domain.Answer, error)

	// Overview summarizes the indexed documents of one category.
	Overview(ctx context.Context, category domain.Category, maxSentences int) (string, error)

	Status() Status
}

type ServiceMiddleware func(Service) Service

// Source supplies the documents an index is built from.
type Source interface {
	Load(ctx context.Context) (loader.Result, error)
}

type State int32

const (
	StateAbsent State = iota
	StateBuilding
	StateReady
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Status describes the index currently served.
type Status struct {
	State     State
	Entries   int
	Dimension int
	Model     string
	BuiltAt   time.Time
}

// BuildReport summarizes one index build.
type BuildReport struct {
	Documents int
	Chunks    int
	Skipped   []loader.Skipped
	Duration  time.Duration
}

type Config struct {
	TopK            int
	CallTimeout     time.Duration // per provider call at query time; 0 disables
	RebuildOnChange bool
}

// index is swapped in whole; it is never mutated after publication.
type index struct {
	entries *memory.Index
	model   string
	builtAt time.Time
	sources map[string]string
}

type engine struct {
	source     Source
	chunker    domain.Chunker
	embedder   domain.Embedder
	generator  domain.Generator
	store      vectorstore.Store
	summarizer domain.Summarizer

	cfg Config
	log *zap.Logger

	buildMu sync.Mutex
	state   atomic.Int32
	current atomic.Pointer[index]
}

func NewService(cfg Config, source Source, chunker domain.Chunker, embedder domain.Embedder,
	generator domain.Generator, store vectorstore.Store, summarizer domain.Summarizer) Service {
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}

	return &engine{
		source:     source,
		chunker:    chunker,
		embedder:   embedder,
		generator:  generator,
		store:      store,
		summarizer: summarizer,
		cfg:        cfg,
		log: zap.L().With(
			zap.String("service", "engine"),
		),
	}
}

func (e *engine) Start(ctx context.Context) error {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	if e.current.Load() != nil {
		return nil
	}

	ix, snap, err := vectorstore.Open(ctx, e.store, e.embedder.Dimension(), e.embedder.Name())
	if err != nil {
		return err
	}

	if ix == nil {
		e.log.Info("no persisted index, building", zap.String("path", e.store.Path()))
		_, err := e.build(ctx, nil)
		return err
	}

	loaded := &index{
		entries: ix,
		model:   snap.Model,
		builtAt: snap.BuiltAt,
		sources: snap.Sources,
	}

	if e.cfg.RebuildOnChange {
		res, err := e.source.Load(ctx)
		if err != nil {
			return domain.WrapError("engine.start", err)
		}

		if stale := snap.Stale(loader.Fingerprints(res.Documents)); len(stale) > 0 {
			e.log.Info("sources changed, rebuilding", zap.Strings("documents", stale))
			_, err := e.build(ctx, &res)
			return err
		}
	}

	e.current.Store(loaded)
	e.state.Store(int32(StateReady))
	return nil
}

func (e *engine) Rebuild(ctx context.Context) (BuildReport, error) {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	return e.build(ctx, nil)
}

// build runs load, chunk, embed, build and save, then swaps the new index
// in. Readers keep using the previous index until the swap. Nothing is
// persisted unless every step succeeds. Callers hold buildMu.
func (e *engine) build(ctx context.Context, res *loader.Result) (BuildReport, error) {
	const op = "engine.build"

	began := time.Now()

	prev := StateAbsent
	if e.current.Load() != nil {
		prev = StateReady
	}
	e.state.Store(int32(StateBuilding))

	report, next, err := e.assemble(ctx, res)
	if err != nil {
		e.state.Store(int32(prev))
		return report, domain.WrapError(op, err)
	}

	snap := vectorstore.NewSnapshot(next.entries, next.model, next.sources)
	if err := e.store.Save(ctx, snap); err != nil {
		e.state.Store(int32(prev))
		return report, domain.WrapError(op, err)
	}
	next.builtAt = snap.BuiltAt

	e.current.Store(next)
	e.state.Store(int32(StateReady))

	report.Duration = time.Since(began)
	return report, nil
}

func (e *engine) assemble(ctx context.Context, res *loader.Result) (BuildReport, *index, error) {
	if res == nil {
		loaded, err := e.source.Load(ctx)
		if err != nil {
			return BuildReport{}, nil, err
		}
		res = &loaded
	}

	report := BuildReport{
		Documents: len(res.Documents),
		Skipped:   res.Skipped,
	}

	var chunks []domain.Chunk
	for _, doc := range res.Documents {
		cs, err := e.chunker.Chunk(doc)
		if err != nil {
			return report, nil, fmt.Errorf("chunking %s: %w", doc.ID, err)
		}
		chunks = append(chunks, cs...)
	}
	report.Chunks = len(chunks)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	var vectors [][]float32
	if len(texts) > 0 {
		var err error
		vectors, err = e.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return report, nil, providerError("embed chunks", err)
		}
		if len(vectors) != len(chunks) {
			return report, nil, fmt.Errorf("%w: embedder returned %d vectors for %d chunks",
				domain.ErrProvider, len(vectors), len(chunks))
		}
	}

	entries := make([]domain.IndexEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = domain.IndexEntry{Chunk: c, Vector: vectors[i]}
	}

	ix, err := memory.Build(e.embedder.Dimension(), entries)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidVector) {
			return report, nil, providerError("embed chunks", err)
		}
		return report, nil, err
	}

	return report, &index{
		entries: ix,
		model:   e.embedder.Name(),
		sources: loader.Fingerprints(res.Documents),
	}, nil
}

func (e *engine) CheckStale(ctx context.Context) ([]string, error) {
	cur := e.current.Load()
	if cur == nil {
		return nil, domain.ErrIndexNotReady
	}

	res, err := e.source.Load(ctx)
	if err != nil {
		return nil, domain.WrapError("engine.check_stale", err)
	}

	snap := vectorstore.Snapshot{Sources: cur.sources}
	return snap.Stale(loader.Fingerprints(res.Documents)), nil
}

func (e *engine) Answer(ctx context.Context, query string, topK int) (domain.Answer, error) {
	const op = "engine.answer"

	cur := e.current.Load()
	if cur == nil {
		return domain.Answer{}, domain.WrapError(op, domain.ErrIndexNotReady)
	}

	if topK <= 0 {
		topK = e.cfg.TopK
	}

	vec, err := callWithTimeout(ctx, e.cfg.CallTimeout, func(ctx context.Context) ([]float32, error) {
		return e.embedder.Embed(ctx, query)
	})
	if err != nil {
		return domain.Answer{}, domain.WrapError(op, providerError("embed query", err))
	}
	if err := domain.VectorError("embed query", vec); err != nil {
		return domain.Answer{}, domain.WrapError(op, providerError("embed query", err))
	}

	results, err := cur.entries.Search(vec, topK)
	if err != nil {
		return domain.Answer{}, domain.WrapError(op, err)
	}

	prompt, err := renderPrompt(query, results)
	if err != nil {
		return domain.Answer{}, domain.WrapError(op, err)
	}

	text, err := callWithTimeout(ctx, e.cfg.CallTimeout, func(ctx context.Context) (string, error) {
		return e.generator.Generate(ctx, prompt)
	})
	if err != nil {
		return domain.Answer{}, domain.WrapError(op, providerError("generate", err))
	}

	return domain.Answer{Text: text, Sources: results}, nil
}

func (e *engine) Overview(_ context.Context, category domain.Category, maxSentences int) (string, error) {
	cur := e.current.Load()
	if cur == nil {
		return "", domain.WrapError("engine.overview", domain.ErrIndexNotReady)
	}
	if e.summarizer == nil {
		return "", nil
	}

	texts := reconstruct(cur.entries.Entries(), category)
	if len(texts) == 0 {
		return "", nil
	}
	return e.summarizer.Summarize(strings.Join(texts, "\n\n"), maxSentences)
}

func (e *engine) Status() Status {
	st := Status{State: State(e.state.Load())}
	if cur := e.current.Load(); cur != nil {
		st.Entries = cur.entries.Len()
		st.Dimension = cur.entries.Dimension()
		st.Model = cur.model
		st.BuiltAt = cur.builtAt
	}
	return st
}

// reconstruct rebuilds the text of every document in category from its
// overlapping chunks, in document id order.
func reconstruct(entries []domain.IndexEntry, category domain.Category) []string {
	byDoc := make(map[string][]domain.Chunk)
	for _, e := range entries {
		if e.Chunk.Category == category {
			byDoc[e.Chunk.ID.DocumentID] = append(byDoc[e.Chunk.ID.DocumentID], e.Chunk)
		}
	}

	ids := make([]string, 0, len(byDoc))
	for id := range byDoc {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		chunks := byDoc[id]
		slices.SortFunc(chunks, func(a, b domain.Chunk) int { return a.ID.Compare(b.ID) })

		var b strings.Builder
		covered := 0
		for _, c := range chunks {
			if c.End <= covered {
				continue
			}
			runes := []rune(c.Text)
			b.WriteString(string(runes[max(0, covered-c.Start):]))
			covered = c.End
		}
		out = append(out, b.String())
	}
	return out
}

// callWithTimeout runs call in its own goroutine so a provider that ignores
// its context still cannot block the caller past the timeout.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)

	go func() {
		val, err := call(ctx)
		done <- result{val, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// providerError classifies a failed embedding or generation call.
func providerError(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrProviderTimeout, err)
	case errors.Is(err, context.Canceled), errors.Is(err, domain.ErrDimensionMismatch), errors.Is(err, domain.ErrProvider):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrProvider, err)
	}
}
