// Package prompt stores versioned prompt templates and selects between
// active versions with weighted A/B traffic splitting.
package prompt

import (
	"fmt"

	"gorm.io/gorm"
)

// Template is one versioned prompt for a task type. Multiple active versions
// may coexist per task type; TrafficPercentage weights the A/B draw and the
// weights need not sum to 100.
type Template struct {
	ID                 uint     `gorm:"primaryKey" json:"id"`
	TaskType           string   `gorm:"index:idx_templates_task;not null" json:"task_type"`
	Version            int      `gorm:"not null" json:"version"`
	SystemPrompt       string   `gorm:"type:text" json:"system_prompt"`
	UserPromptTemplate string   `gorm:"type:text" json:"user_prompt_template"`
	Variables          []string `gorm:"serializer:json" json:"variables"`
	TrafficPercentage  float64  `gorm:"default:100" json:"traffic_percentage"`
	IsActive           bool     `gorm:"index:idx_templates_task" json:"is_active"`
	TotalUses          int64    `json:"total_uses"`
	AvgConfidence      float64  `json:"avg_confidence"`
	CreatedAt          int64    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          int64    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Template) TableName() string { return "prompt_templates" }

// Migrate creates the template table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Template{}); err != nil {
		return fmt.Errorf("failed to migrate prompt templates: %w", err)
	}
	return nil
}
