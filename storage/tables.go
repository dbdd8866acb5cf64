package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"schedule-board/domain"
)

// boardPartition is the single partition every task row lives in.
const boardPartition = "board"

// TableStore persists the board in an Azure Storage table.
type TableStore struct {
	table *aztables.Client
}

// NewTableStore creates a TableStore from the given connection string.
func NewTableStore(connStr, tasksTable string) (*TableStore, error) {
	if connStr == "" || tasksTable == "" {
		return nil, ErrNotConfigured
	}
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &TableStore{table: svc.NewClient(tasksTable)}, nil
}

// encodedKeyPrefix marks a RowKey holding the base64url form of a task id
// that Azure Tables would reject as a key.
const encodedKeyPrefix = "b64:"

// rowKey maps a task id to a valid RowKey. Ids free of '/', '\\', '#', '?'
// and control characters are used as is; the rest are base64url encoded.
func rowKey(id string) string {
	if strings.HasPrefix(id, encodedKeyPrefix) || strings.IndexFunc(id, invalidKeyRune) >= 0 {
		return encodedKeyPrefix + base64.RawURLEncoding.EncodeToString([]byte(id))
	}
	return id
}

func invalidKeyRune(r rune) bool {
	switch {
	case r == '/' || r == '\\' || r == '#' || r == '?':
		return true
	case r <= 0x1f || (r >= 0x7f && r <= 0x9f):
		return true
	}
	return false
}

type taskEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	TaskID       string `json:"TaskID"`
	TaskName     string `json:"TaskName"`
	Description  string `json:"Description"`
	StartTime    string `json:"StartTime"`
	EndTime      string `json:"EndTime"`
	Equipment    string `json:"Equipment"`
	AssignedTo   string `json:"AssignedTo"`
	Priority     string `json:"Priority"`
	// Tables have no list type, dependencies are stored as a JSON array string.
	Dependencies string `json:"Dependencies"`
	Rev          int64  `json:"Rev"`
}

func encodeTaskEntity(task domain.Task, rev uint64) ([]byte, error) {
	deps := task.Dependencies
	if deps == nil {
		deps = domain.Dependencies{}
	}
	rawDeps, err := json.Marshal([]string(deps))
	if err != nil {
		return nil, err
	}
	return json.Marshal(taskEntity{
		PartitionKey: boardPartition,
		RowKey:       rowKey(task.ID),
		TaskID:       task.ID,
		TaskName:     task.Name,
		Description:  task.Description,
		StartTime:    task.StartTime,
		EndTime:      task.EndTime,
		Equipment:    task.Equipment,
		AssignedTo:   task.AssignedTo,
		Priority:     string(task.Priority),
		Dependencies: string(rawDeps),
		Rev:          int64(rev),
	})
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	id := ent.TaskID
	if id == "" {
		id = ent.RowKey
	}
	var deps []string
	if ent.Dependencies != "" {
		if err := json.Unmarshal([]byte(ent.Dependencies), &deps); err != nil {
			return domain.Task{}, err
		}
	}
	return domain.Task{
		ID:           id,
		Name:         ent.TaskName,
		Description:  ent.Description,
		StartTime:    ent.StartTime,
		EndTime:      ent.EndTime,
		Equipment:    ent.Equipment,
		AssignedTo:   ent.AssignedTo,
		Priority:     domain.Priority(ent.Priority),
		Dependencies: deps,
	}, nil
}

// Load lists every task row of the board partition.
func (s *TableStore) Load(ctx context.Context) (domain.Tasks, error) {
	filter := "PartitionKey eq '" + boardPartition + "'"
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := domain.Tasks{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			t, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks[t.ID] = t
		}
	}
	return tasks, nil
}

// Apply mirrors a committed add or delete into the table.
func (s *TableStore) Apply(ctx context.Context, ev domain.ChangeEvent) error {
	switch ev.Type {
	case domain.EventTaskAdded:
		payload, err := encodeTaskEntity(ev.Task, ev.Rev)
		if err != nil {
			return err
		}
		_, err = s.table.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
		return err
	case domain.EventTaskDeleted:
		_, err := s.table.DeleteEntity(ctx, boardPartition, rowKey(ev.TaskID), nil)
		if err != nil {
			var respErr *azcore.ResponseError
			if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
				return nil
			}
		}
		return err
	default:
		return nil
	}
}

// Close is a no-op; the table client holds no resources.
func (s *TableStore) Close() error { return nil }
