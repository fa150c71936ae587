package store

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/ncruces/go-sqlite3/gormlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"inkpost/pkg/domain"
)

const migrateLockID int64 = 51874219

// GormStore implements Store using GORM on Postgres or SQLite.
type GormStore struct {
	db     *gorm.DB
	sqlite bool
}

// NewGormStore opens the DB named by dsn and runs auto-migrations.
// DSNs prefixed with "sqlite:" or "file:" use the embedded SQLite driver;
// anything else is handed to the Postgres driver.
func NewGormStore(dsn string) (*GormStore, error) {
	dialector, isSQLite, err := openDialector(dsn)
	if err != nil {
		return nil, err
	}
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &GormStore{db: db, sqlite: isSQLite}
	if isSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
		// One connection keeps the pragmas below in force and serialises writers.
		sqlDB.SetMaxOpenConns(1)
		if err := db.Exec("PRAGMA foreign_keys=on; PRAGMA busy_timeout=5000").Error; err != nil {
			return nil, fmt.Errorf("configure sqlite: %w", err)
		}
		if err := migrate(db); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err := withMigrationLock(db, migrate); err != nil {
		return nil, err
	}
	return s, nil
}

func openDialector(dsn string) (gorm.Dialector, bool, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return nil, false, errors.New("database URL required")
	case strings.HasPrefix(dsn, "sqlite://"):
		return gormlite.Open(strings.TrimPrefix(dsn, "sqlite://")), true, nil
	case strings.HasPrefix(dsn, "sqlite:"):
		return gormlite.Open(strings.TrimPrefix(dsn, "sqlite:")), true, nil
	case strings.HasPrefix(dsn, "file:"):
		return gormlite.Open(dsn), true, nil
	default:
		return postgres.Open(dsn), false, nil
	}
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&UserModel{}, &PostModel{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database reachability.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// UpsertUserByEmail inserts the user unless the email is taken, then returns the stored row.
func (s *GormStore) UpsertUserByEmail(ctx context.Context, u domain.User) (domain.User, error) {
	model := userToModel(u)
	db := s.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(&model).Error; err != nil {
		return domain.User{}, userWriteError(err)
	}
	var stored UserModel
	if err := db.First(&stored, "email = ?", u.Email).Error; err != nil {
		return domain.User{}, err
	}
	return userFromModel(stored), nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// UpdateUser applies changes; the unique index on email is the final guard against duplicates.
func (s *GormStore) UpdateUser(ctx context.Context, id string, changes domain.UserChanges, at time.Time) (domain.User, error) {
	var model UserModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		updates := map[string]any{"updated_at": at}
		if changes.Email != nil {
			updates["email"] = *changes.Email
		}
		switch {
		case changes.ClearName:
			updates["name"] = nil
		case changes.Name != nil:
			updates["name"] = *changes.Name
		}
		if err := tx.Model(&UserModel{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return userWriteError(err)
		}
		return tx.First(&model, "id = ?", id).Error
	})
	if err != nil {
		return domain.User{}, err
	}
	return userFromModel(model), nil
}

// DeleteUser removes a user and every post they authored.
func (s *GormStore) DeleteUser(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&PostModel{}, "author_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&UserModel{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// CreatePost inserts a post and returns it with its author projection.
func (s *GormStore) CreatePost(ctx context.Context, p domain.Post) (domain.Post, error) {
	model := postToModel(p)
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&model).Error; err != nil {
		return domain.Post{}, postWriteError(err)
	}
	created, ok, err := s.GetPost(ctx, model.ID)
	if err != nil {
		return domain.Post{}, err
	}
	if !ok {
		return domain.Post{}, ErrNotFound
	}
	return created, nil
}

// GetPost retrieves a post with its author.
func (s *GormStore) GetPost(ctx context.Context, id string) (domain.Post, bool, error) {
	var model PostModel
	if err := s.db.WithContext(ctx).Preload("Author").First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Post{}, false, nil
		}
		return domain.Post{}, false, err
	}
	return postFromModel(model), true, nil
}

// ListPosts returns matching posts, newest first.
func (s *GormStore) ListPosts(ctx context.Context, filter domain.PostFilter) ([]domain.Post, error) {
	tx := s.db.WithContext(ctx).Preload("Author").Order("created_at DESC").Order("id DESC")
	if filter.AuthorID != "" {
		tx = tx.Where("author_id = ?", filter.AuthorID)
	}
	if filter.Published != nil {
		tx = tx.Where("published = ?", *filter.Published)
	}
	var models []PostModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Post, 0, len(models))
	for _, m := range models {
		p := postFromModel(m)
		// Text search runs in Go so matching is identical on every dialect.
		if !filter.Matches(p) {
			continue
		}
		res = append(res, p)
	}
	slices.SortStableFunc(res, func(a, b domain.Post) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return res, nil
}

// ListPostsByAuthor returns the reduced projection of a user's posts, newest first.
func (s *GormStore) ListPostsByAuthor(ctx context.Context, authorID string) ([]domain.PostSummary, error) {
	var models []PostModel
	if err := s.db.WithContext(ctx).
		Where("author_id = ?", authorID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.PostSummary, 0, len(models))
	for _, m := range models {
		res = append(res, postFromModel(m).Summary())
	}
	slices.SortStableFunc(res, func(a, b domain.PostSummary) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return res, nil
}

// newestFirst orders by creation time, then id, both descending. SQLite keeps
// timestamps as text with trimmed fractions, so ORDER BY alone is not enough.
func newestFirst(aAt, bAt time.Time, aID, bID string) int {
	if c := bAt.Compare(aAt); c != 0 {
		return c
	}
	return cmp.Compare(bID, aID)
}

// UpdatePost applies changes to an existing post. AuthorID is never written.
func (s *GormStore) UpdatePost(ctx context.Context, id string, changes domain.PostChanges, at time.Time) (domain.Post, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"updated_at": at}
		if changes.Title != nil {
			updates["title"] = *changes.Title
		}
		if changes.Content != nil {
			updates["content"] = *changes.Content
		}
		if changes.Published != nil {
			updates["published"] = *changes.Published
		}
		res := tx.Model(&PostModel{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return domain.Post{}, err
	}
	updated, ok, err := s.GetPost(ctx, id)
	if err != nil {
		return domain.Post{}, err
	}
	if !ok {
		return domain.Post{}, ErrNotFound
	}
	return updated, nil
}

// DeletePost permanently removes a post.
func (s *GormStore) DeletePost(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&PostModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePostsByAuthors removes every post written by the given users.
func (s *GormStore) DeletePostsByAuthors(ctx context.Context, authorIDs ...string) (int64, error) {
	if len(authorIDs) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Delete(&PostModel{}, "author_id IN ?", authorIDs)
	return res.RowsAffected, res.Error
}

func userWriteError(err error) error {
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

func postWriteError(err error) error {
	if isForeignKeyViolation(err) {
		return ErrAuthorMissing
	}
	return err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var sqliteErr *sqlite3.Error
	return errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode() == sqlite3.CONSTRAINT_UNIQUE || sqliteErr.ExtendedCode() == sqlite3.CONSTRAINT_PRIMARYKEY)
}

func isForeignKeyViolation(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var sqliteErr *sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode() == sqlite3.CONSTRAINT_FOREIGNKEY
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:        m.ID,
		Email:     m.Email,
		Name:      m.Name,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

func postToModel(p domain.Post) PostModel {
	return PostModel{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		Published: p.Published,
		AuthorID:  p.AuthorID,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func postFromModel(m PostModel) domain.Post {
	return domain.Post{
		ID:        m.ID,
		Title:     m.Title,
		Content:   m.Content,
		Published: m.Published,
		AuthorID:  m.AuthorID,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
		Author:    userFromModel(m.Author).Summary(),
	}
}
