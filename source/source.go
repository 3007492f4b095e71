// Package source reads the task records reports are built from.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/UniQw/reportq/report"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type userRow struct {
	ID        uint `gorm:"primaryKey"`
	FirstName string
	LastName  string
	Email     string
}

func (userRow) TableName() string { return "users" }

type clientRow struct {
	ID        uint `gorm:"primaryKey"`
	FirstName string
	LastName  string
	Email     string
	Projects  []projectRow `gorm:"many2many:client_project;joinForeignKey:ClientID;joinReferences:ProjectID"`
}

func (clientRow) TableName() string { return "clients" }

type projectRow struct {
	ID    uint `gorm:"primaryKey"`
	Title string
}

func (projectRow) TableName() string { return "projects" }

type taskRow struct {
	ID          uint `gorm:"primaryKey"`
	Title       string
	Description string
	StartDate   *time.Time
	TimeSpent   string
	ProjectID   *uint
	Project     *projectRow `gorm:"foreignKey:ProjectID"`
	CreatorID   *uint
	Creator     *userRow `gorm:"foreignKey:CreatorID"`
	CreatedAt   time.Time `gorm:"index"`
}

func (taskRow) TableName() string { return "tasks" }

// Store is a read-only view over the tasks database.
type Store struct {
	db *gorm.DB
}

// Open connects with the "sqlite" or "mysql" driver.
func Open(driver, dsn string) (*Store, error) {
	var dial gorm.Dialector
	switch driver {
	case "sqlite", "sqlite3":
		dial = sqlite.Open(dsn)
	case "mysql":
		dial = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("source: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dial, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", driver, err)
	}
	return New(db), nil
}

// New wraps an existing connection.
func New(db *gorm.DB) *Store { return &Store{db: db} }

// Migrate creates the tables the store reads. Production databases are owned
// by the task-management application; this is for local setups and tests.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&userRow{}, &projectRow{}, &clientRow{}, &taskRow{})
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) tasks(ctx context.Context, p report.Period) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Project").
		Preload("Creator").
		Where("created_at >= ? AND created_at < ?", p.Start, p.End).
		Order("created_at, id")
}

// Tasks returns every task created inside the period.
func (s *Store) Tasks(ctx context.Context, p report.Period) ([]report.Task, error) {
	var rows []taskRow
	if err := s.tasks(ctx, p).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("source: tasks: %w", err)
	}
	return toTasks(rows), nil
}

// ClientTasks returns the tasks created inside the period on projects linked to the client.
func (s *Store) ClientTasks(ctx context.Context, p report.Period, clientID uint) ([]report.Task, error) {
	var rows []taskRow
	sub := s.db.Table("client_project").Select("project_id").Where("client_id = ?", clientID)
	if err := s.tasks(ctx, p).Where("project_id IN (?)", sub).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("source: client %d tasks: %w", clientID, err)
	}
	return toTasks(rows), nil
}

// Clients returns every client ordered by ID.
func (s *Store) Clients(ctx context.Context) ([]report.Client, error) {
	var rows []clientRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("source: clients: %w", err)
	}
	out := make([]report.Client, 0, len(rows))
	for _, c := range rows {
		out = append(out, report.Client{ID: c.ID, FirstName: c.FirstName, LastName: c.LastName, Email: c.Email})
	}
	return out, nil
}

// Missing relations stay nil; the renderer rejects them.
func toTasks(rows []taskRow) []report.Task {
	out := make([]report.Task, 0, len(rows))
	for _, r := range rows {
		t := report.Task{
			ID:          r.ID,
			Title:       r.Title,
			Description: r.Description,
			CreatedAt:   r.CreatedAt,
			TimeSpent:   r.TimeSpent,
		}
		if r.StartDate != nil {
			t.StartDate = *r.StartDate
		}
		if r.Project != nil {
			t.Project = &report.Project{ID: r.Project.ID, Title: r.Project.Title}
		}
		if r.Creator != nil {
			t.Creator = &report.User{ID: r.Creator.ID, FirstName: r.Creator.FirstName, LastName: r.Creator.LastName, Email: r.Creator.Email}
		}
		out = append(out, t)
	}
	return out
}
