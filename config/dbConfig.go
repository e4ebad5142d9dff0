package config

import (
	"context"
	"database/sql"

	"github.com/ethereum/go-ethereum/log"
	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"idprivacy/store"
)

// ConnectDB opens and pings a MySQL database.
func ConnectDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("Connected to MySQL database")
	return db, nil
}

// OpenStore opens the KV selected by s.StoreDriver. The returned func
// releases its connection.
func OpenStore(ctx context.Context, s Settings) (store.KV, func(), error) {
	noop := func() {}
	switch s.StoreDriver {
	case StoreMemory:
		return store.NewMemory(), noop, nil
	case StoreFile, "":
		f, err := store.OpenFile(s.StorePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Opened file store", "path", f.Path())
		return f, noop, nil
	case StoreMySQL:
		db, err := ConnectDB(ctx, s.MySQLDSN)
		if err != nil {
			return nil, nil, errors.Wrap(err, "connect mysql")
		}
		kv, err := store.NewMySQL(ctx, db, s.MySQLTable)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return kv, func() { db.Close() }, nil
	case StoreMongo:
		client, err := GetMongoClient(ctx, s.MongoURI)
		if err != nil {
			return nil, nil, errors.Wrap(err, "connect mongo")
		}
		log.Info("Connected to MongoDB", "database", s.MongoDatabase, "collection", s.MongoCollection)
		kv := store.NewMongo(client.Database(s.MongoDatabase).Collection(s.MongoCollection))
		return kv, func() { client.Disconnect(context.Background()) }, nil
	}
	return nil, nil, errors.Errorf("unknown store driver %q", s.StoreDriver)
}
