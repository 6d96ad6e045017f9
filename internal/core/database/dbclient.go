package db

import (
	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/core/quota"
)

var (
	_ core.DbClient = (*DatabaseClient)(nil)
	_ quota.Store   = (*DatabaseClient)(nil)
)
