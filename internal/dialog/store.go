package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/utilibot/utilibot/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationState is the single durable record per user. The user id is
// the primary key: set overwrites, clear deletes, absence means idle.
type ConversationState struct {
	UserID    snowflake.ID   `json:"user_id" gorm:"primaryKey"`
	Step      string         `json:"step" gorm:"type:text;not null"`
	Context   datatypes.JSON `json:"context"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (ConversationState) TableName() string { return "conversation_states" }

type StoreParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Store struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func NewStore(p StoreParam) *Store {
	return &Store{
		db:    p.DB,
		log:   p.Log.Named("dialog.store"),
		clock: p.Clock,
	}
}

// Get returns the user's current state, or nil when the user is idle.
func (s *Store) Get(ctx context.Context, userID snowflake.ID) (State, error) {
	var record ConversationState
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	factory, ok := stateFactories[Step(record.Step)]
	if !ok {
		// A step name this build no longer knows. Treat as idle rather
		// than trapping the user in an unservable state.
		s.log.Warn("unknown dialog step, treating as idle", zap.String("step", record.Step))
		return nil, nil
	}

	state := factory()
	if len(record.Context) > 0 {
		if err := json.Unmarshal(record.Context, state); err != nil {
			s.log.Warn("corrupt dialog context, treating as idle",
				zap.String("step", record.Step),
				zap.Error(err),
			)
			return nil, nil
		}
	}
	return deref(state), nil
}

// Set replaces the user's state record. It never appends history.
func (s *Store) Set(ctx context.Context, userID snowflake.ID, state State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}

	record := ConversationState{
		UserID:    userID,
		Step:      string(state.Step()),
		Context:   datatypes.JSON(payload),
		UpdatedAt: s.clock.Now(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(&record).Error
}

// Clear deletes the user's state record. Clearing an absent state is a no-op.
func (s *Store) Clear(ctx context.Context, userID snowflake.ID) error {
	return s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&ConversationState{}).Error
}

// deref unwraps the pointer the factory produced so callers can type-switch
// on value variants.
func deref(state State) State {
	v := reflect.ValueOf(state)
	if v.Kind() == reflect.Ptr && !v.IsNil() {
		if s, ok := v.Elem().Interface().(State); ok {
			return s
		}
	}
	return state
}

var Module = fx.Module("dialog.store",
	fx.Provide(NewStore),
)
