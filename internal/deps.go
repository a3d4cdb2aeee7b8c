package internal

import (
	"bitwise74/fileshare-api/internal/notify"
	"bitwise74/fileshare-api/internal/service"
	"bitwise74/fileshare-api/internal/store"
	"bitwise74/fileshare-api/pkg/security"

	"gorm.io/gorm"
)

type Deps struct {
	DB        *gorm.DB
	Store     *store.GormStore
	Passwords *security.PasswordHasher
	Storage   service.ObjectStore
	Hub       *notify.Hub
	Notifier  notify.Notifier

	Access     *service.AccessService
	Files      *service.FileService
	Tags       *service.TagManager
	Accounting *service.DownloadAccounting
}
