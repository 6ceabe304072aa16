package postgres

import (
	"database/sql"

	"github.com/taskpadhq/taskpad/internal/auth/store"
)

type tx struct {
	tx *sql.Tx
}

var _ store.Tx = (*tx)(nil)

func (t *tx) Users() store.Users       { return &usersRepo{q: t.tx} }
func (t *tx) Sessions() store.Sessions { return &sessionsRepo{q: t.tx} }
