// Package seed provides helpers to create development and demo data for
// the chat database. These helpers are intended for development and
// testing only.
package seed

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"vixogram/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// Options configures the seeder.
type Options struct {
	NumUsers        int
	MessagesPerRoom int
	ShouldClean     bool
	Seed            int64
}

// Defaults fills zero-valued options.
func (o *Options) Defaults() {
	if o.NumUsers <= 0 {
		o.NumUsers = 25
	}
	if o.MessagesPerRoom <= 0 {
		o.MessagesPerRoom = 40
	}
}

// BuiltInRoom is a permanent system room created on every seed run.
type BuiltInRoom struct {
	GroupName   string
	DisplayName string
	Topical     bool
}

// BuiltInRooms defines the rooms every development database starts with.
var BuiltInRooms = []BuiltInRoom{
	{GroupName: "lobby", DisplayName: "Lobby"},
	{GroupName: "showcase", DisplayName: "Showcase your work"},
	{GroupName: "gaming", DisplayName: "Gaming", Topical: true},
	{GroupName: "music", DisplayName: "Music", Topical: true},
}

var chatLines = []string{
	"anyone around?",
	"good morning everyone",
	"that was wild yesterday",
	"what are you all listening to",
	"brb coffee",
	"this room is quiet today",
	"same here honestly",
	"ok that makes sense",
	"did anyone catch the stream",
	"lol",
}

// Run populates the database with demo users, rooms, and chat history.
func Run(db *gorm.DB, opts Options) error {
	opts.Defaults()
	rng := rand.New(rand.NewSource(opts.Seed))
	if opts.Seed == 0 {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	gofakeit.Seed(opts.Seed)

	if opts.ShouldClean {
		if err := clean(db); err != nil {
			return fmt.Errorf("clean: %w", err)
		}
	}

	users, err := seedUsers(db, opts.NumUsers)
	if err != nil {
		return fmt.Errorf("seed users: %w", err)
	}

	rooms, err := seedRooms(db, users)
	if err != nil {
		return fmt.Errorf("seed rooms: %w", err)
	}

	if err := seedMessages(db, rng, rooms, users, opts.MessagesPerRoom); err != nil {
		return fmt.Errorf("seed messages: %w", err)
	}

	log.Printf("seeded %d users, %d rooms", len(users), len(rooms))
	return nil
}

func clean(db *gorm.DB) error {
	// Child tables first.
	for _, model := range []interface{}{
		&models.MessageReaction{},
		&models.ChatReadState{},
		&models.Message{},
		&models.CodeRoomJoinRequest{},
		&models.RoomMember{},
		&models.Notification{},
		&models.PushToken{},
		&models.BlockedMessageEvent{},
		&models.ModerationEvent{},
		&models.Room{},
		&models.User{},
	} {
		if err := db.Where("1 = 1").Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}

func seedUsers(db *gorm.DB, n int) ([]*models.User, error) {
	users := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		username := strings.ToLower(gofakeit.Username())
		if len(username) < 3 {
			username = username + gofakeit.DigitN(3)
		}
		if len(username) > 32 {
			username = username[:32]
		}
		user := &models.User{
			Username:      fmt.Sprintf("%s%d", username, i),
			Email:         gofakeit.Email(),
			EmailVerified: gofakeit.Bool(),
			DisplayName:   gofakeit.Name(),
			IsActive:      true,
		}
		if err := db.Create(user).Error; err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func seedRooms(db *gorm.DB, users []*models.User) ([]*models.Room, error) {
	rooms := make([]*models.Room, 0, len(BuiltInRooms))
	for _, spec := range BuiltInRooms {
		room := &models.Room{
			GroupName:   spec.GroupName,
			DisplayName: spec.DisplayName,
		}
		if spec.Topical && len(users) > 0 {
			room.AdminUserID = &users[0].ID
		}
		err := db.Where(models.Room{GroupName: spec.GroupName}).
			FirstOrCreate(room).Error
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func seedMessages(db *gorm.DB, rng *rand.Rand, rooms []*models.Room, users []*models.User, perRoom int) error {
	if len(users) == 0 {
		return nil
	}
	for _, room := range rooms {
		base := time.Now().Add(-time.Duration(perRoom) * time.Minute)
		for i := 0; i < perRoom; i++ {
			author := users[rng.Intn(len(users))]
			msg := &models.Message{
				RoomID:    room.ID,
				AuthorID:  author.ID,
				Kind:      models.MessageKindText,
				Body:      chatLines[rng.Intn(len(chatLines))],
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			}
			if err := db.Create(msg).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
