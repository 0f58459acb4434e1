package blobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TaskLedger records completed task slices of a sharded run in DynamoDB,
// so workers restarted by the scheduler can skip slices that already
// produced their candidate lists.
//
// Table layout: partition key "run" (string), sort key "task" (number).
type TaskLedger struct {
	client *dynamodb.Client
	table  string
}

// NewTaskLedger creates a ledger over an existing client.
func NewTaskLedger(client *dynamodb.Client, table string) *TaskLedger {
	return &TaskLedger{client: client, table: table}
}

func taskKey(run string, taskID uint32) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"run":  &types.AttributeValueMemberS{Value: run},
		"task": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", taskID)},
	}
}

// MarkDone records a completed task slice with its output artifact name.
// The write is conditional so two workers finishing the same slice do not
// clobber each other; losing the race is not an error.
func (l *TaskLedger) MarkDone(ctx context.Context, run string, taskID uint32, artifact string) error {
	item := taskKey(run, taskID)
	item["artifact"] = &types.AttributeValueMemberS{Value: artifact}
	item["finished"] = &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)}

	_, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#r)"),
		ExpressionAttributeNames: map[string]string{
			"#r": "run",
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return nil
		}
		return err
	}
	return nil
}

// IsDone reports whether a task slice completed, and the artifact it
// produced.
func (l *TaskLedger) IsDone(ctx context.Context, run string, taskID uint32) (bool, string, error) {
	out, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(l.table),
		Key:            taskKey(run, taskID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, "", err
	}
	if out.Item == nil {
		return false, "", nil
	}

	artifact := ""
	if av, ok := out.Item["artifact"].(*types.AttributeValueMemberS); ok {
		artifact = av.Value
	}
	return true, artifact, nil
}

// Pending returns the task ids in 1..taskLast that have not completed.
func (l *TaskLedger) Pending(ctx context.Context, run string, taskLast uint32) ([]uint32, error) {
	var pending []uint32
	for taskID := uint32(1); taskID <= taskLast; taskID++ {
		done, _, err := l.IsDone(ctx, run, taskID)
		if err != nil {
			return nil, err
		}
		if !done {
			pending = append(pending, taskID)
		}
	}
	return pending, nil
}
