package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/venturelink/aigateway/llm"
)

const (
	// selectionCacheTTL bounds how long active-template lists are served
	// from memory before hitting the database again.
	selectionCacheTTL = 5 * time.Minute
	// confidenceAlpha is the EMA weight of each new confidence sample.
	confidenceAlpha = 0.05
)

// MissingVariablesError names the schema keys absent from a render call.
type MissingVariablesError struct {
	TaskType string
	Keys     []string
}

func (e *MissingVariablesError) Error() string {
	return fmt.Sprintf("missing template variables for %s: %s", e.TaskType, strings.Join(e.Keys, ", "))
}

// Rendered is the outcome of template selection and substitution.
type Rendered struct {
	Messages   []llm.Message `json:"messages"`
	TemplateID uint          `json:"template_id"`
	Version    int           `json:"version"`
}

// cacheEntry carries its own expiry so staleness is an explicit check, not a
// side effect of an eviction goroutine.
type cacheEntry struct {
	templates []Template
	expiresAt time.Time
}

// Registry selects, renders and tracks prompt templates.
type Registry struct {
	db     *gorm.DB
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry

	rngMu sync.Mutex
	rng   *rand.Rand

	now func() time.Time
}

// NewRegistry builds a registry. rng may be nil; tests pass a seeded source
// to make the A/B draw deterministic.
func NewRegistry(db *gorm.DB, rng *rand.Rand, logger *zap.Logger) *Registry {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		db:     db,
		logger: logger.With(zap.String("component", "prompt.registry")),
		cache:  make(map[string]cacheEntry),
		rng:    rng,
		now:    time.Now,
	}
}

// WithClock overrides the registry clock for cache-expiry tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// loadActive returns the active templates for a task type, served from the
// selection cache while the entry is fresh.
func (r *Registry) loadActive(ctx context.Context, taskType string) ([]Template, error) {
	r.mu.RLock()
	entry, ok := r.cache[taskType]
	r.mu.RUnlock()
	if ok && r.now().Before(entry.expiresAt) {
		return entry.templates, nil
	}

	var templates []Template
	err := r.db.WithContext(ctx).
		Where("task_type = ? AND is_active = ?", taskType, true).
		Order("version").
		Find(&templates).Error
	if err != nil {
		return nil, fmt.Errorf("load templates for %s: %w", taskType, err)
	}

	r.mu.Lock()
	r.cache[taskType] = cacheEntry{templates: templates, expiresAt: r.now().Add(selectionCacheTTL)}
	r.mu.Unlock()
	return templates, nil
}

// selectTemplate picks among active versions. A single version wins
// outright; multiple versions get a weighted roll over the sum of their
// traffic percentages.
func (r *Registry) selectTemplate(templates []Template) Template {
	if len(templates) == 1 {
		return templates[0]
	}

	total := 0.0
	for _, t := range templates {
		if t.TrafficPercentage > 0 {
			total += t.TrafficPercentage
		}
	}
	if total <= 0 {
		return templates[0]
	}

	r.rngMu.Lock()
	roll := r.rng.Float64() * total
	r.rngMu.Unlock()

	for _, t := range templates {
		if t.TrafficPercentage <= 0 {
			continue
		}
		roll -= t.TrafficPercentage
		if roll < 0 {
			return t
		}
	}
	return templates[len(templates)-1]
}

// Render selects a template for the task type, validates the variables
// against its schema and substitutes them into the prompts. It increments
// the template's use counter as a side effect.
func (r *Registry) Render(ctx context.Context, taskType string, variables map[string]any) (*Rendered, error) {
	templates, err := r.loadActive(ctx, taskType)
	if err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		return nil, fmt.Errorf("no active template for task type %s", taskType)
	}

	tmpl := r.selectTemplate(templates)

	var missing []string
	for _, key := range tmpl.Variables {
		if _, ok := variables[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingVariablesError{TaskType: taskType, Keys: missing}
	}

	system := substitute(tmpl.SystemPrompt, variables)
	user := substitute(tmpl.UserPromptTemplate, variables)

	if err := r.db.WithContext(ctx).Model(&Template{}).
		Where("id = ?", tmpl.ID).
		UpdateColumn("total_uses", gorm.Expr("total_uses + 1")).Error; err != nil {
		r.logger.Warn("use counter update failed",
			zap.Uint("template_id", tmpl.ID),
			zap.Error(err))
	}

	messages := make([]llm.Message, 0, 2)
	if system != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: user})

	return &Rendered{Messages: messages, TemplateID: tmpl.ID, Version: tmpl.Version}, nil
}

// SystemPrompt selects an active template for the task type and returns
// its system prompt without touching the use counter. Callers that only
// need the prompt text, like the batcher, use this so total_uses counts
// renders that back a completion of their own.
func (r *Registry) SystemPrompt(ctx context.Context, taskType string) (string, error) {
	templates, err := r.loadActive(ctx, taskType)
	if err != nil {
		return "", err
	}
	if len(templates) == 0 {
		return "", fmt.Errorf("no active template for task type %s", taskType)
	}
	return r.selectTemplate(templates).SystemPrompt, nil
}

// substitute replaces {key} tokens with readable renderings of the values.
// Structured values are serialized to JSON instead of Go's default formatting.
func substitute(text string, variables map[string]any) string {
	for key, value := range variables {
		text = strings.ReplaceAll(text, "{"+key+"}", renderValue(value))
	}
	return text
}

func renderValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case int, int64, float64, bool:
		return fmt.Sprintf("%v", v)
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// UpdateQualityMetrics folds one confidence sample into the template's
// exponential moving average. The first sample seeds the average directly.
func (r *Registry) UpdateQualityMetrics(ctx context.Context, templateID uint, confidence float64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tmpl Template
		if err := tx.First(&tmpl, templateID).Error; err != nil {
			return fmt.Errorf("load template %d: %w", templateID, err)
		}
		avg := confidence
		if tmpl.AvgConfidence != 0 {
			avg = tmpl.AvgConfidence*(1-confidenceAlpha) + confidence*confidenceAlpha
		}
		return tx.Model(&tmpl).UpdateColumn("avg_confidence", avg).Error
	})
}

// InvalidateCache drops the selection cache for one task type, or all task
// types when taskType is empty. Template edits must call this so stale
// versions never outlive the edit by more than the TTL.
func (r *Registry) InvalidateCache(taskType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if taskType == "" {
		r.cache = make(map[string]cacheEntry)
		return
	}
	delete(r.cache, taskType)
}

// Create inserts a new template version and invalidates the selection cache
// for its task type.
func (r *Registry) Create(ctx context.Context, tmpl *Template) error {
	if tmpl.TaskType == "" {
		return fmt.Errorf("task_type is required")
	}
	if tmpl.UserPromptTemplate == "" {
		return fmt.Errorf("user_prompt_template is required")
	}
	if tmpl.Version <= 0 {
		var maxVersion int
		r.db.WithContext(ctx).Model(&Template{}).
			Where("task_type = ?", tmpl.TaskType).
			Select("COALESCE(MAX(version), 0)").Scan(&maxVersion)
		tmpl.Version = maxVersion + 1
	}
	if err := r.db.WithContext(ctx).Create(tmpl).Error; err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	r.InvalidateCache(tmpl.TaskType)
	return nil
}

// Deactivate retires a template version and invalidates the cache.
func (r *Registry) Deactivate(ctx context.Context, templateID uint) error {
	var tmpl Template
	if err := r.db.WithContext(ctx).First(&tmpl, templateID).Error; err != nil {
		return fmt.Errorf("load template %d: %w", templateID, err)
	}
	if err := r.db.WithContext(ctx).Model(&tmpl).UpdateColumn("is_active", false).Error; err != nil {
		return fmt.Errorf("deactivate template %d: %w", templateID, err)
	}
	r.InvalidateCache(tmpl.TaskType)
	return nil
}

// Get returns one template by ID.
func (r *Registry) Get(ctx context.Context, templateID uint) (*Template, error) {
	var tmpl Template
	if err := r.db.WithContext(ctx).First(&tmpl, templateID).Error; err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// List returns all template versions for a task type, newest first.
func (r *Registry) List(ctx context.Context, taskType string) ([]Template, error) {
	var templates []Template
	err := r.db.WithContext(ctx).
		Where("task_type = ?", taskType).
		Order("version DESC").
		Find(&templates).Error
	return templates, err
}
