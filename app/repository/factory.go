package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory builds the repository set for one database handle, once.
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

func NewFactory(db *gorm.DB) *Factory {
	return &Factory{db: db}
}

func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

var (
	globalMu      sync.RWMutex
	globalFactory *Factory
)

// InitializeFactory installs the process-wide factory used by the server and
// the CLI. A second call replaces it.
func InitializeFactory(db *gorm.DB) {
	globalMu.Lock()
	globalFactory = NewFactory(db)
	globalMu.Unlock()
}

// GetGlobalRepositories panics when InitializeFactory was never called.
func GetGlobalRepositories() *Repositories {
	globalMu.RLock()
	f := globalFactory
	globalMu.RUnlock()
	if f == nil {
		panic("repository factory not initialized, call InitializeFactory first")
	}
	return f.GetRepositories()
}
