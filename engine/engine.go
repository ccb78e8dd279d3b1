// Package engine runs the per-file validation pipeline: select an adapter,
// build the Semantic Model, read the header tag, resolve the architecture,
// evaluate its constraints and settle a status. Results are cached by the
// checksums of the file, the registry and the config.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/semguard/cache"
	"github.com/c360studio/semguard/config"
	"github.com/c360studio/semguard/constraint"
	"github.com/c360studio/semguard/registry"
	"github.com/c360studio/semguard/resolver"
	"github.com/c360studio/semguard/semantic"
)

// ErrNoAdapter is reported for untagged files no adapter understands.
var ErrNoAdapter = semantic.ErrNoAdapter

// File is one unit of work.
type File struct {
	// Path is relative to the project root
	Path    string
	Content []byte

	// Tag is read from the content header when nil
	Tag *Tag
}

// Engine validates files against a registry snapshot.
// It is safe for concurrent use.
type Engine struct {
	holder      *registry.Holder
	adapters    *semantic.Registry
	validators  *constraint.Set
	cache       cache.Store
	config      *config.Config
	logger      *slog.Logger
	metrics     *Metrics
	concurrency int
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithHolder reads the registry from h on every batch, so a Watcher can
// swap snapshots underneath a running engine.
func WithHolder(h *registry.Holder) Option {
	return func(e *Engine) {
		e.holder = h
	}
}

// WithAdapters sets the adapter registry. Defaults to semantic.DefaultRegistry.
func WithAdapters(r *semantic.Registry) Option {
	return func(e *Engine) {
		e.adapters = r
	}
}

// WithValidators sets the evaluator set. Defaults to constraint.DefaultSet().
func WithValidators(s *constraint.Set) Option {
	return func(e *Engine) {
		e.validators = s
	}
}

// WithCache sets the result store. Without one nothing is cached.
func WithCache(s cache.Store) Option {
	return func(e *Engine) {
		e.cache = s
	}
}

// WithConfig sets the language and concurrency settings.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		e.config = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics registers the engine's collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.metrics = NewMetrics(reg)
	}
}

// WithConcurrency bounds parallel validations in a batch.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		e.concurrency = n
	}
}

// WithClock sets the time source used to expire overrides.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an engine over reg.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		holder:     registry.NewHolder(reg),
		adapters:   semantic.DefaultRegistry,
		validators: constraint.DefaultSet(),
		config:     config.DefaultConfig(),
		logger:     slog.Default(),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.concurrency <= 0 {
		e.concurrency = e.config.Concurrency
	}
	if e.concurrency <= 0 {
		e.concurrency = runtime.NumCPU()
	}
	return e
}

// Registry returns the snapshot new validations will use.
func (e *Engine) Registry() *registry.Registry {
	return e.holder.Load()
}

// ValidateFile runs the whole pipeline for one file. It never fails: every
// problem becomes the file's terminal status.
func (e *Engine) ValidateFile(ctx context.Context, f File) *ValidationResult {
	return e.validate(ctx, e.holder.Load(), f)
}

func (e *Engine) validate(ctx context.Context, reg *registry.Registry, f File) (res *ValidationResult) {
	start := time.Now()
	path := filepath.ToSlash(f.Path)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Validation panicked", "file", path, "panic", r)
			res = &ValidationResult{File: path, Status: StatusParseError, Error: fmt.Sprintf("internal error: %v", r)}
		}
		e.metrics.recordFile(res.Status, time.Since(start))
		e.logger.Debug("Validated file", "file", path, "status", res.Status,
			"errors", res.ErrorCount, "warnings", res.WarningCount, "cached", res.FromCache)
	}()

	tag := f.Tag
	if tag == nil {
		parsed := ParseHeader(string(f.Content))
		tag = &parsed
	}

	lang, known := e.adapters.LanguageFor(path)
	if known && !e.config.LanguageEnabled(string(lang)) {
		return &ValidationResult{File: path, ArchID: tag.ArchID, Status: StatusSkip, Language: lang}
	}

	key := e.entryKey(reg, f, tag)
	if cached, ok := e.lookup(ctx, path, key); ok {
		return cached
	}

	res = e.evaluate(ctx, reg, path, f.Content, tag, lang, known)

	if ctx.Err() == nil {
		e.store(ctx, path, key, res)
	}
	return res
}

func (e *Engine) evaluate(ctx context.Context, reg *registry.Registry, path string, content []byte,
	tag *Tag, lang semantic.Language, known bool) *ValidationResult {

	res := &ValidationResult{File: path, ArchID: tag.ArchID}

	// Unparsed -> Modeled
	var adapter semantic.Adapter
	switch {
	case known:
		a, err := e.adapters.Adapter(lang)
		if err != nil {
			return parseFailure(res, err)
		}
		adapter = a
	case tag.ArchID == "":
		return parseFailure(res, fmt.Errorf("%w for %s", ErrNoAdapter, path))
	default:
		adapter = semantic.TextAdapter{}
	}

	model, err := parse(ctx, adapter, path, content)
	if err != nil {
		return parseFailure(res, err)
	}
	res.Language = model.Language
	res.Diagnostics = model.Diagnostics
	for _, imp := range model.Imports {
		res.Imports = append(res.Imports, imp.Module)
	}

	if tag.ArchID == "" {
		res.Status = StatusMissingArch
		return res
	}

	// Modeled -> Resolved
	flat, err := resolver.ResolveWith(reg, tag.ArchID, tag.Mixins)
	if err != nil {
		res.Status = StatusResolveError
		res.Error = err.Error()
		var nf *resolver.NotFoundError
		if errors.As(err, &nf) {
			res.Suggestions = nf.Suggestions
		}
		return res
	}
	res.InheritanceChain = flat.Chain
	res.MixinsApplied = flat.MixinsApplied

	// Resolved -> Evaluated
	cctx := &constraint.Context{
		FilePath: path,
		Model:    model,
		Content:  string(content),
		ArchID:   tag.ArchID,
		Intents:  tag.Intents,
		Patterns: reg.Patterns(),
		Layers:   reg,
	}
	skip := e.config.SkipConstraints(string(model.Language))

	var found []constraint.Violation
	for _, rc := range flat.Constraints {
		if skip[rc.Constraint.Rule] {
			continue
		}
		out := e.validators.Validate(rc.Constraint, cctx)
		for _, v := range out.Violations {
			v.Source = rc.Source.String()
			found = append(found, v)
		}
	}

	for _, c := range flat.Conflicts {
		if c.Severity == registry.SeverityError {
			found = append(found, constraint.Violation{
				Rule:     c.Rule,
				Value:    c.Value,
				Message:  c.Resolution,
				Severity: registry.SeverityWarning,
				Source:   c.Winner.String(),
			})
		}
	}

	found = e.applyOverrides(res, tag, found)

	if d := flat.Deprecation; d != nil {
		found = append(found, constraint.Violation{
			Rule:     RuleDeprecated,
			Value:    tag.ArchID,
			Message:  fmt.Sprintf("architecture %s is deprecated since %s", tag.ArchID, d.From),
			Severity: registry.SeverityWarning,
			FixHint:  d.MigrationGuide,
		})
	}

	for _, v := range found {
		res.add(v)
	}
	res.settle()
	return res
}

// applyOverrides drops violations covered by a live override. Expired and
// malformed overrides are reported as warnings and left out.
func (e *Engine) applyOverrides(res *ValidationResult, tag *Tag, found []constraint.Violation) []constraint.Violation {
	if len(tag.Overrides) == 0 {
		return found
	}
	now := e.now()

	var live []Override
	for _, o := range tag.Overrides {
		label := fmt.Sprintf("%s:%s", o.Rule, o.Value)
		if !o.Rule.Known() {
			res.add(notice(label, fmt.Sprintf("override names unknown rule %q", o.Rule), o.Line))
			continue
		}
		expired, err := o.Expired(now)
		if err != nil {
			res.add(notice(label, fmt.Sprintf("override %s has an invalid @expires date %q; it is ignored", label, o.Expires), o.Line))
			continue
		}
		if expired {
			res.add(notice(label, fmt.Sprintf("override %s expired on %s; its violations are reported again", label, o.Expires), o.Line))
			continue
		}
		if o.Reason == "" {
			res.add(notice(label, fmt.Sprintf("override %s has no @reason", label), o.Line))
		}
		live = append(live, o)
	}
	res.OverridesActive = live

	kept := make([]constraint.Violation, 0, len(found))
	for _, v := range found {
		if !v.RuleError && covered(live, v) {
			continue
		}
		kept = append(kept, v)
	}
	return kept
}

func covered(overrides []Override, v constraint.Violation) bool {
	for _, o := range overrides {
		if o.Matches(v.Rule, v.Value) {
			return true
		}
	}
	return false
}

func notice(value, message string, line int) constraint.Violation {
	return constraint.Violation{
		Rule:     RuleOverride,
		Value:    value,
		Message:  message,
		Severity: registry.SeverityWarning,
		Line:     line,
	}
}

func parseFailure(res *ValidationResult, err error) *ValidationResult {
	res.Status = StatusParseError
	res.Error = err.Error()
	return res
}

// parse runs the adapter, turning a panic into an error.
func parse(ctx context.Context, adapter semantic.Adapter, path string, content []byte) (m *semantic.Model, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("%s adapter panicked: %v", adapter.Language(), r)
		}
	}()
	m, err = adapter.Parse(ctx, path, content)
	if err == nil && m == nil {
		err = fmt.Errorf("%s adapter returned no model", adapter.Language())
	}
	return m, err
}

// CacheEntry is the persisted form of a result. It is only reused when all
// three checksums match the current inputs.
type CacheEntry struct {
	FileChecksum     string            `json:"file_checksum"`
	RegistryChecksum string            `json:"registry_checksum"`
	ConfigChecksum   string            `json:"config_checksum"`
	Result           *ValidationResult `json:"result"`
}

func (e *Engine) entryKey(reg *registry.Registry, f File, tag *Tag) CacheEntry {
	h := sha256.New()
	h.Write(f.Content)
	if f.Tag != nil {
		// A tag supplied by the caller need not match the header
		data, _ := json.Marshal(f.Tag)
		h.Write([]byte{0})
		h.Write(data)
	}
	if tag.expiring() {
		h.Write([]byte{0})
		h.Write([]byte(e.now().Format(ExpiresLayout)))
	}

	return CacheEntry{
		FileChecksum:     hex.EncodeToString(h.Sum(nil)),
		RegistryChecksum: reg.Checksum(),
		ConfigChecksum:   e.config.Checksum(),
	}
}

func (e *Engine) lookup(ctx context.Context, path string, key CacheEntry) (*ValidationResult, bool) {
	if e.cache == nil {
		return nil, false
	}

	data, err := e.cache.Get(ctx, path)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			e.logger.Warn("Cache read failed", "file", path, "error", err)
		}
		e.metrics.recordCache(false)
		return nil, false
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Result == nil {
		e.logger.Debug("Discarding unreadable cache entry", "file", path, "error", err)
		e.metrics.recordCache(false)
		return nil, false
	}
	if entry.FileChecksum != key.FileChecksum ||
		entry.RegistryChecksum != key.RegistryChecksum ||
		entry.ConfigChecksum != key.ConfigChecksum {
		e.metrics.recordCache(false)
		return nil, false
	}

	e.metrics.recordCache(true)
	entry.Result.FromCache = true
	return entry.Result, true
}

func (e *Engine) store(ctx context.Context, path string, key CacheEntry, res *ValidationResult) {
	if e.cache == nil {
		return
	}
	key.Result = res
	data, err := json.Marshal(key)
	if err != nil {
		e.logger.Warn("Cache encode failed", "file", path, "error", err)
		return
	}
	if err := e.cache.Put(ctx, path, data); err != nil {
		e.logger.Warn("Cache write failed", "file", path, "error", err)
	}
}
