package cmd

import (
	"path/filepath"

	"github.com/loupelabs/loupe/internal/config"
	"github.com/loupelabs/loupe/pkg/metastore"
	"github.com/loupelabs/loupe/pkg/queue"
)

// pgConfig maps the loaded configuration onto the metastore connector.
func pgConfig(c *config.Config) metastore.Config {
	return metastore.Config{
		ConnString: c.DB.ConnStr,
		Host:       c.DB.Host,
		Port:       c.DB.Port,
		Name:       c.DB.Name,
		User:       c.DB.User,
		Password:   c.DB.Password,
	}
}

// redisConfig maps the loaded configuration onto the queue client.
func redisConfig(c *config.Config) queue.Config {
	return queue.Config{Host: c.Redis.Host, Port: c.Redis.Port}
}

// archivePath is the full path of the active archive file.
func archivePath(c *config.Config) string {
	return filepath.Join(c.Archive.Root, c.Archive.File)
}
