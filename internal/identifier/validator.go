package identifier

import (
	"context"
	"sync"
	"time"

	"catalog-service/internal/models"

	"go.uber.org/zap"
)

const (
	DefaultDelay  = 500 * time.Millisecond
	lookupTimeout = 5 * time.Second
)

// DefaultCodeLengths are the accepted code lengths (EAN-8 and EAN-13).
var DefaultCodeLengths = []int{8, 13}

// Lookup checks whether a product with the given code already exists.
type Lookup interface {
	Exists(ctx context.Context, id models.ExternalProductID) (bool, error)
}

// Result is delivered once per completed, still-current check.
type Result struct {
	Key   string
	ID    models.ExternalProductID
	Taken bool
	Err   error
}

// Config for a Validator.
type Config struct {
	Delay       time.Duration
	CodeLengths []int
}

type task struct {
	gen    uint64
	timer  *time.Timer
	cancel context.CancelFunc
}

// Validator debounces uniqueness checks per field key. Scheduling a check
// for a key supersedes any pending or running check for that key, so the
// last scheduled check is the only one whose result is delivered.
type Validator struct {
	lookup   Lookup
	delay    time.Duration
	lengths  map[int]bool
	onResult func(Result)
	logger   *zap.Logger

	mu     sync.Mutex
	tasks  map[string]*task
	gen    uint64
	frozen bool

	// serialises delivery so a result is never handed out after the check
	// that replaced it has been delivered.
	deliverMu sync.Mutex
}

// NewValidator creates a Validator. onResult must not call back into the
// Validator.
func NewValidator(lookup Lookup, cfg Config, onResult func(Result), logger *zap.Logger) *Validator {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if len(cfg.CodeLengths) == 0 {
		cfg.CodeLengths = DefaultCodeLengths
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	lengths := make(map[int]bool, len(cfg.CodeLengths))
	for _, n := range cfg.CodeLengths {
		lengths[n] = true
	}
	return &Validator{
		lookup:   lookup,
		delay:    cfg.Delay,
		lengths:  lengths,
		onResult: onResult,
		logger:   logger,
		tasks:    make(map[string]*task),
	}
}

// Accepts reports whether value is a numeric code of an accepted length.
func (v *Validator) Accepts(value string) bool {
	return checkable(value, v.lengths)
}

// Checkable reports whether value is a numeric code of one of lengths.
func Checkable(value string, lengths []int) bool {
	set := make(map[int]bool, len(lengths))
	for _, n := range lengths {
		set[n] = true
	}
	return checkable(value, set)
}

func checkable(value string, lengths map[int]bool) bool {
	if !lengths[len(value)] {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Schedule cancels any check for key and, if the code is checkable, starts
// a new one after the debounce delay. It reports whether a check was
// scheduled.
func (v *Validator) Schedule(key string, id models.ExternalProductID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.cancelLocked(key)
	if v.frozen || !v.Accepts(id.Value) {
		return false
	}

	v.gen++
	t := &task{gen: v.gen}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.timer = time.AfterFunc(v.delay, func() { v.run(ctx, key, t.gen, id) })
	v.tasks[key] = t
	return true
}

// Cancel drops the pending or running check for key.
func (v *Validator) Cancel(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cancelLocked(key)
}

// CancelAll drops every pending or running check.
func (v *Validator) CancelAll() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for key := range v.tasks {
		v.cancelLocked(key)
	}
}

// Freeze cancels everything and ignores later Schedule calls. Used once the
// product has been persisted and its codes can no longer change.
func (v *Validator) Freeze() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.frozen = true
	for key := range v.tasks {
		v.cancelLocked(key)
	}
}

// Pending returns the number of checks not yet delivered.
func (v *Validator) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.tasks)
}

func (v *Validator) cancelLocked(key string) {
	t, ok := v.tasks[key]
	if !ok {
		return
	}
	t.timer.Stop()
	t.cancel()
	delete(v.tasks, key)
}

func (v *Validator) current(key string, gen uint64) bool {
	t, ok := v.tasks[key]
	return ok && t.gen == gen
}

func (v *Validator) run(ctx context.Context, key string, gen uint64, id models.ExternalProductID) {
	lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	taken, err := v.lookup.Exists(lookupCtx, id)
	if ctx.Err() != nil {
		return
	}

	v.deliverMu.Lock()
	defer v.deliverMu.Unlock()

	v.mu.Lock()
	if !v.current(key, gen) {
		v.mu.Unlock()
		return
	}
	v.tasks[key].cancel()
	delete(v.tasks, key)
	v.mu.Unlock()

	if err != nil {
		v.logger.Warn("Identifier check failed",
			zap.String("key", key),
			zap.String("value", id.Value),
			zap.Error(err))
	}
	if v.onResult != nil {
		v.onResult(Result{Key: key, ID: id, Taken: taken, Err: err})
	}
}
