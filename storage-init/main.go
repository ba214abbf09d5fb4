package main

import (
	"context"
	"errors"
	"os"
	"strconv"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"

	"board-api/storage"
)

// storage-init provisions everything the board server expects at startup:
// the relational schema and, when configured, the audit mirror queue. Safe
// to run repeatedly.
func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("missing DATABASE_URL")
	}

	ctx := context.Background()

	store, err := storage.Connect(ctx, dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}
	log.Info("schema ready")

	queueConn := os.Getenv("AUDIT_QUEUE_CONNECTION_STRING")
	queueName := os.Getenv("AUDIT_QUEUE")
	if queueConn == "" || queueName == "" {
		log.Info("audit queue not configured, skipping")
		return
	}
	if err := createQueue(ctx, queueConn, queueName); err != nil {
		log.Fatalf("create queue: %v", err)
	}
	log.Info("storage init complete")
}

func createQueue(ctx context.Context, connStr, name string) error {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
	if err != nil {
		return err
	}
	_, err = q.Create(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists" {
			log.Debugf("queue %s already exists", name)
			return nil
		}
		return err
	}
	log.Infof("queue %s created", name)
	return nil
}
