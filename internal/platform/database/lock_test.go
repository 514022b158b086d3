package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateLockID_Deterministic(t *testing.T) {
	a := GenerateLockID("collection", "document_embeddings")
	b := GenerateLockID("collection", "document_embeddings")
	c := GenerateLockID("collection", "other")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestConnectionParams_ConnString(t *testing.T) {
	params := ConnectionParams{
		Host:     "db",
		Port:     5433,
		User:     "u",
		Password: "p",
		DBName:   "rag",
		SSLMode:  "disable",
	}

	assert.Equal(t, "host=db port=5433 user=u password=p dbname=rag sslmode=disable", params.ConnString())
}
