// Package store is the record store used by the services. Queries go through
// gorm; callers only see the Records, Tags and Users interfaces.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitwise74/fileshare-api/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// Filter narrows FindAll. Zero fields don't filter.
type Filter struct {
	IDs       []string
	ParentIDs []string
	UserID    string
	// Public records plus the ones owned by VisibleTo. Empty means public only
	// when PublicOnly is set.
	VisibleTo     string
	PublicOnly    bool
	ExpiredBefore *time.Time
	Limit         int
}

type Records interface {
	Find(ctx context.Context, id string) (*model.FileRecord, error)
	FindAll(ctx context.Context, f Filter) ([]model.FileRecord, error)
	Insert(ctx context.Context, f *model.FileRecord) error
	Update(ctx context.Context, id string, patch map[string]any) (*model.FileRecord, error)
	Delete(ctx context.Context, id string) error
	AtomicIncrement(ctx context.Context, id, column string) error

	CreateDownloadLog(ctx context.Context, l *model.DownloadLog) error
	CountDownloads(ctx context.Context, userID string, fileIDs []string) (int64, error)
}

type Tags interface {
	FindOrCreateTag(ctx context.Context, tag *model.Tag) (*model.Tag, error)
	LinkTag(ctx context.Context, fileID, tagID string) (bool, error)
	TagsOf(ctx context.Context, fileID string) ([]model.Tag, error)
	ListTags(ctx context.Context) ([]model.Tag, error)
}

type Users interface {
	CreateUser(ctx context.Context, u *model.User) error
	FindUser(ctx context.Context, id string) (*model.User, error)
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
}

// Columns that may be incremented through AtomicIncrement
var counterColumns = map[string]struct{}{
	"download_count": {},
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Find(ctx context.Context, id string) (*model.FileRecord, error) {
	var f model.FileRecord

	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		First(&f).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to find file, %w", err)
	}

	return &f, nil
}

func (s *GormStore) FindAll(ctx context.Context, f Filter) ([]model.FileRecord, error) {
	q := s.db.WithContext(ctx).Model(&model.FileRecord{})

	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}

	if len(f.ParentIDs) > 0 {
		q = q.Where("parent_id IN ?", f.ParentIDs)
	}

	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}

	if f.VisibleTo != "" {
		q = q.Where("(is_private = ? OR user_id = ?)", false, f.VisibleTo)
	} else if f.PublicOnly {
		q = q.Where("is_private = ?", false)
	}

	if f.ExpiredBefore != nil {
		q = q.Where("expires_at IS NOT NULL AND expires_at <= ?", *f.ExpiredBefore)
	}

	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var out []model.FileRecord
	if err := q.Order("created_at asc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list files, %w", err)
	}

	return out, nil
}

func (s *GormStore) Insert(ctx context.Context, f *model.FileRecord) error {
	if err := s.db.WithContext(ctx).Create(f).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrConflict
		}

		return fmt.Errorf("failed to insert file, %w", err)
	}

	return nil
}

// Update applies patch (column -> value, nil clears the column) and returns
// the updated record
func (s *GormStore) Update(ctx context.Context, id string, patch map[string]any) (*model.FileRecord, error) {
	if len(patch) > 0 {
		res := s.db.WithContext(ctx).
			Model(&model.FileRecord{}).
			Where("id = ?", id).
			Updates(patch)
		if res.Error != nil {
			return nil, fmt.Errorf("failed to update file, %w", res.Error)
		}
	}

	return s.Find(ctx, id)
}

// Delete removes the record and its tag links. Children are re-linked so the
// lineage stays connected, see relinkChildren.
func (s *GormStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var f model.FileRecord
		if err := tx.Where("id = ?", id).First(&f).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}

			return err
		}

		if err := relinkChildren(tx, &f); err != nil {
			return fmt.Errorf("failed to re-link children, %w", err)
		}

		if err := tx.Where("file_id = ?", id).Delete(&model.FileTag{}).Error; err != nil {
			return fmt.Errorf("failed to delete tag links, %w", err)
		}

		if err := tx.Where("id = ?", id).Delete(&model.FileRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete file, %w", err)
		}

		return nil
	})
}

// relinkChildren points the children of f at f's parent. A root has no parent
// to hand its children to, so its oldest child becomes the new root and adopts
// its siblings.
func relinkChildren(tx *gorm.DB, f *model.FileRecord) error {
	newParent := f.ParentID

	if newParent == nil {
		var oldest model.FileRecord

		err := tx.
			Where("parent_id = ?", f.ID).
			Order("created_at").
			Order("id").
			First(&oldest).
			Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}

			return err
		}

		err = tx.
			Model(&model.FileRecord{}).
			Where("id = ?", oldest.ID).
			Update("parent_id", nil).
			Error
		if err != nil {
			return err
		}

		newParent = &oldest.ID
	}

	return tx.
		Model(&model.FileRecord{}).
		Where("parent_id = ?", f.ID).
		Update("parent_id", newParent).
		Error
}

// AtomicIncrement adds one to column in a single UPDATE, so concurrent
// increments never get lost
func (s *GormStore) AtomicIncrement(ctx context.Context, id, column string) error {
	if _, ok := counterColumns[column]; !ok {
		return fmt.Errorf("column %q can't be incremented", column)
	}

	res := s.db.WithContext(ctx).
		Model(&model.FileRecord{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1))
	if res.Error != nil {
		return fmt.Errorf("failed to increment %s, %w", column, res.Error)
	}

	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *GormStore) CreateDownloadLog(ctx context.Context, l *model.DownloadLog) error {
	if err := s.db.WithContext(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("failed to write download log, %w", err)
	}

	return nil
}

// CountDownloads counts the logged downloads of userID across fileIDs
func (s *GormStore) CountDownloads(ctx context.Context, userID string, fileIDs []string) (int64, error) {
	if userID == "" || len(fileIDs) == 0 {
		return 0, nil
	}

	var n int64
	err := s.db.WithContext(ctx).
		Model(&model.DownloadLog{}).
		Where("user_id = ? AND file_id IN ?", userID, fileIDs).
		Count(&n).
		Error
	if err != nil {
		return 0, fmt.Errorf("failed to count downloads, %w", err)
	}

	return n, nil
}

// FindOrCreateTag returns the tag with tag.Name, creating it from tag when
// missing. A concurrent insert of the same name is resolved by re-reading.
func (s *GormStore) FindOrCreateTag(ctx context.Context, tag *model.Tag) (*model.Tag, error) {
	db := s.db.WithContext(ctx)

	err := db.
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(tag).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to create tag, %w", err)
	}

	var out model.Tag
	if err := db.Where("name = ?", tag.Name).First(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch tag, %w", err)
	}

	return &out, nil
}

// LinkTag links a tag to a file. It reports false when the link already existed.
func (s *GormStore) LinkTag(ctx context.Context, fileID, tagID string) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.FileTag{FileID: fileID, TagID: tagID})
	if res.Error != nil {
		return false, fmt.Errorf("failed to link tag, %w", res.Error)
	}

	return res.RowsAffected > 0, nil
}

func (s *GormStore) TagsOf(ctx context.Context, fileID string) ([]model.Tag, error) {
	var tags []model.Tag

	err := s.db.WithContext(ctx).
		Joins("JOIN file_tags ON file_tags.tag_id = tags.id").
		Where("file_tags.file_id = ?", fileID).
		Order("tags.name").
		Find(&tags).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch file tags, %w", err)
	}

	return tags, nil
}

func (s *GormStore) ListTags(ctx context.Context) ([]model.Tag, error) {
	var tags []model.Tag
	if err := s.db.WithContext(ctx).Order("name").Find(&tags).Error; err != nil {
		return nil, fmt.Errorf("failed to list tags, %w", err)
	}

	return tags, nil
}

func (s *GormStore) CreateUser(ctx context.Context, u *model.User) error {
	var found bool

	err := s.db.WithContext(ctx).
		Model(model.User{}).
		Select("count(*) > 0").
		Where("email = ?", u.Email).
		Find(&found).
		Error
	if err != nil {
		return fmt.Errorf("failed to check if user is registered, %w", err)
	}

	if found {
		return ErrConflict
	}

	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("failed to create user, %w", err)
	}

	return nil
}

func (s *GormStore) FindUser(ctx context.Context, id string) (*model.User, error) {
	return s.findUser(ctx, "id = ?", id)
}

func (s *GormStore) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findUser(ctx, "email = ?", email)
}

// UpdatePasswordHash replaces the stored password hash of userID
func (s *GormStore) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	res := s.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Update("password_hash", hash)
	if res.Error != nil {
		return fmt.Errorf("failed to update password hash, %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *GormStore) findUser(ctx context.Context, query string, arg any) (*model.User, error) {
	var u model.User

	if err := s.db.WithContext(ctx).Where(query, arg).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to find user, %w", err)
	}

	return &u, nil
}
