// Package events is the shared vocabulary of the health-domain services:
// the event kinds, routing keys, payload schemas, and the default binding
// catalog that ties consuming queues to routing patterns.
package events

import "github.com/wellgrid/healthbus/transport"

// Event kinds. The first segment of every routing key must be one of these;
// handler registration against any other prefix is rejected.
const (
	KindNutrition     = "nutrition"
	KindFitness       = "fitness"
	KindMind          = "mind"
	KindSecurity      = "security"
	KindNotifications = "notifications"
)

// Routing keys published by the domain services.
const (
	RouteMealLogged       = "nutrition.meal_logged"
	RouteMealUpdated      = "nutrition.meal_updated"
	RouteWorkoutCompleted = "fitness.workout_completed"
	RouteWorkoutSuggested = "fitness.workout_suggested"
	RouteMoodCheckIn      = "mind.mood_checkin"
	RouteSecurityAlert    = "security.alert"
	RouteSecurityLogin    = "security.login"
	RouteNotificationSend = "notifications.send"
)

// Event type names carried in the wire payload's "type" field.
const (
	TypeMealLogged       = "meal_logged"
	TypeMealUpdated      = "meal_updated"
	TypeWorkoutCompleted = "workout_completed"
	TypeWorkoutSuggested = "workout_suggested"
	TypeMoodCheckIn      = "mood_checkin"
	TypeSecurityAlert    = "security_alert"
	TypeSecurityLogin    = "security_login"
	TypeNotification     = "notification"
)

// Kinds returns the closed set of event kinds.
func Kinds() []string {
	return []string{
		KindNutrition,
		KindFitness,
		KindMind,
		KindSecurity,
		KindNotifications,
	}
}

// DefaultBindings is the standard binding catalog: one durable queue per
// consuming service, bound to its domain's routing pattern.
func DefaultBindings() []transport.QueueBinding {
	return []transport.QueueBinding{
		{Queue: "nutrition_analysis", Pattern: "nutrition.*", Durable: true},
		{Queue: "fitness_planner", Pattern: "fitness.*", Durable: true},
		{Queue: "mind_support", Pattern: "mind.*", Durable: true},
		{Queue: "security_audit", Pattern: "security.*", Durable: true},
		{Queue: "notifications", Pattern: "notifications.*", Durable: true},
	}
}

// MealLogged is emitted when a user records a meal.
type MealLogged struct {
	Type     string   `json:"type"`
	UserID   string   `json:"user_id"`
	MealID   string   `json:"meal_id"`
	Name     string   `json:"name,omitempty"`
	Calories int      `json:"calories"`
	Macros   *Macros  `json:"macros,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Macros breaks a meal's calories down by macronutrient, in grams.
type Macros struct {
	Protein float64 `json:"protein"`
	Carbs   float64 `json:"carbs"`
	Fat     float64 `json:"fat"`
}

// NewMealLogged builds a MealLogged payload with the type field populated.
func NewMealLogged(userID, mealID string, calories int) MealLogged {
	return MealLogged{
		Type:     TypeMealLogged,
		UserID:   userID,
		MealID:   mealID,
		Calories: calories,
	}
}

// WorkoutCompleted is emitted when a user finishes a tracked workout.
type WorkoutCompleted struct {
	Type            string `json:"type"`
	UserID          string `json:"user_id"`
	WorkoutID       string `json:"workout_id"`
	Activity        string `json:"activity"`
	DurationMinutes int    `json:"duration_minutes"`
	CaloriesBurned  int    `json:"calories_burned,omitempty"`
}

// NewWorkoutCompleted builds a WorkoutCompleted payload with the type field populated.
func NewWorkoutCompleted(userID, workoutID, activity string, durationMinutes int) WorkoutCompleted {
	return WorkoutCompleted{
		Type:            TypeWorkoutCompleted,
		UserID:          userID,
		WorkoutID:       workoutID,
		Activity:        activity,
		DurationMinutes: durationMinutes,
	}
}

// WorkoutSuggested is emitted by the fitness planner in reaction to other
// domain events, e.g. a high-calorie meal.
type WorkoutSuggested struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Activity string `json:"activity"`
	Reason   string `json:"reason,omitempty"`
}

// NewWorkoutSuggested builds a WorkoutSuggested payload with the type field populated.
func NewWorkoutSuggested(userID, activity, reason string) WorkoutSuggested {
	return WorkoutSuggested{
		Type:     TypeWorkoutSuggested,
		UserID:   userID,
		Activity: activity,
		Reason:   reason,
	}
}

// MoodCheckIn is emitted when a user records their mood.
type MoodCheckIn struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Mood   string `json:"mood"`
	Score  int    `json:"score"`
	Note   string `json:"note,omitempty"`
}

// NewMoodCheckIn builds a MoodCheckIn payload with the type field populated.
func NewMoodCheckIn(userID, mood string, score int) MoodCheckIn {
	return MoodCheckIn{
		Type:   TypeMoodCheckIn,
		UserID: userID,
		Mood:   mood,
		Score:  score,
	}
}

// SecurityAlert is emitted on suspicious account activity.
type SecurityAlert struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Severity string `json:"severity"`
	Detail   string `json:"detail,omitempty"`
	SourceIP string `json:"source_ip,omitempty"`
}

// NewSecurityAlert builds a SecurityAlert payload with the type field populated.
func NewSecurityAlert(userID, severity, detail string) SecurityAlert {
	return SecurityAlert{
		Type:     TypeSecurityAlert,
		UserID:   userID,
		Severity: severity,
		Detail:   detail,
	}
}

// Notification asks the notification service to deliver a message to a user.
type Notification struct {
	Type    string `json:"type"`
	UserID  string `json:"user_id"`
	Channel string `json:"channel"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

// NewNotification builds a Notification payload with the type field populated.
func NewNotification(userID, channel, body string) Notification {
	return Notification{
		Type:    TypeNotification,
		UserID:  userID,
		Channel: channel,
		Body:    body,
	}
}
