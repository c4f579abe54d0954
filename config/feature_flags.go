package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages runtime toggles for the analytics features.
// Supports gradual rollout by student and course targeting.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Override rules (for testing/debugging)
	studentOverrides map[int64]map[string]bool // studentID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`

	// Rollout percentage (0-100)
	// Students are assigned based on hash of their ID
	RolloutPercent int `json:"rollout_percent"`

	// Course targeting; empty means all courses
	TargetCourses []int64 `json:"target_courses,omitempty"`
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	StudentID int64
	CourseID  int64
}

// Predefined feature flag names.
const (
	FeatureRiskModel          = "risk.model"                   // Ask the trained classifier before the formula
	FeatureWeeklyProgressGate = "progress.warmup_gate"         // Hide the chart until week 2/3 activity
	FeatureEngagementDetails  = "analytics.engagement_details" // Per-record breakdown endpoint
	FeatureRiskAlerts         = "alerts.high_risk"             // Worker publishes HIGH risk alerts
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := NewFeatureFlags()
	ff.loadFromEnvironment()
	return ff
}

// NewFeatureFlags returns the defaults without reading the environment.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:         make(map[string]*Feature),
		studentOverrides: make(map[int64]map[string]bool),
	}
	ff.initializeDefaults()
	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureRiskModel] = &Feature{
		Name:           FeatureRiskModel,
		Description:    "Use the statistical risk model when one is loaded",
		Enabled:        true,
		RolloutPercent: 100,
	}
	ff.features[FeatureWeeklyProgressGate] = &Feature{
		Name:           FeatureWeeklyProgressGate,
		Description:    "Show weekly progress only after activity in week 2 or 3",
		Enabled:        true,
		RolloutPercent: 100,
	}
	ff.features[FeatureEngagementDetails] = &Feature{
		Name:           FeatureEngagementDetails,
		Description:    "Expose per-record engagement breakdown",
		Enabled:        true,
		RolloutPercent: 100,
	}
	ff.features[FeatureRiskAlerts] = &Feature{
		Name:           FeatureRiskAlerts,
		Description:    "Publish alerts for students estimated at HIGH risk",
		Enabled:        false,
		RolloutPercent: 0,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_RISK_MODEL=25 (25% rollout)
// Course targeting: FEATURE_<NAME>_COURSES=12,15
// Per-student overrides: FEATURE_<NAME>_STUDENTS=7,-9 (7 forced on, 9 forced off)
func (ff *FeatureFlags) loadFromEnvironment() {
	for _, name := range ff.names() {
		envKey := featureNameToEnvKey(name)
		if courses := os.Getenv(envKey + "_COURSES"); courses != "" {
			ff.features[name].TargetCourses = parseIDList(courses)
		}
		for _, id := range parseIDList(os.Getenv(envKey + "_STUDENTS")) {
			if id < 0 {
				ff.SetStudentOverride(-id, name, false)
			} else {
				ff.SetStudentOverride(id, name, true)
			}
		}

		val := os.Getenv(envKey)
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			percent := 0
			if b {
				percent = 100
			}
			_ = ff.SetRolloutPercent(name, percent)
			continue
		}
		if p, err := strconv.Atoi(val); err == nil {
			_ = ff.SetRolloutPercent(name, p)
		}
	}
}

func (ff *FeatureFlags) names() []string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	names := make([]string, 0, len(ff.features))
	for name := range ff.features {
		names = append(names, name)
	}
	return names
}

// featureNameToEnvKey converts feature name to environment variable key.
// "risk.model" -> "FEATURE_RISK_MODEL"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if ctx != nil && ctx.StudentID != 0 {
		if overrides, ok := ff.studentOverrides[ctx.StudentID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}

	if len(feature.TargetCourses) > 0 && ctx != nil && ctx.CourseID != 0 {
		match := false
		for _, c := range feature.TargetCourses {
			if c == ctx.CourseID {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	if feature.RolloutPercent < 100 && ctx != nil && ctx.StudentID != 0 {
		return isInRollout(ctx.StudentID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// Enabled is IsEnabled with a student/course pair.
func (ff *FeatureFlags) Enabled(featureName string, studentID, courseID int64) bool {
	return ff.IsEnabled(featureName, &FeatureContext{StudentID: studentID, CourseID: courseID})
}

// isInRollout determines if a student is in the rollout percentage.
// Uses consistent hashing so students stay in their bucket.
func isInRollout(studentID int64, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(strconv.FormatInt(studentID, 10)))
	return int(h.Sum32()%100) < percent
}

// SetStudentOverride forces a feature on or off for one student.
func (ff *FeatureFlags) SetStudentOverride(studentID int64, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.studentOverrides[studentID]; !ok {
		ff.studentOverrides[studentID] = make(map[string]bool)
	}
	ff.studentOverrides[studentID][featureName] = enabled
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0
	return nil
}

// Snapshot returns a copy of all feature configurations.
func (ff *FeatureFlags) Snapshot() map[string]Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]Feature, len(ff.features))
	for k, v := range ff.features {
		result[k] = *v
	}
	return result
}

func parseIDList(s string) []int64 {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		if id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
