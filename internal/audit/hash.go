package audit

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/angelmondragon/brokerledger/pkg/db/models"
)

const hashTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// ComputeHash digests every chained field of row, prevHash included, as
// SHA3-256 over a key-sorted JSON document. The stored Hash is ignored.
func ComputeHash(row models.AuditLog) (string, error) {
	doc := map[string]any{
		"createdAt":  row.CreatedAt.UTC().Format(hashTimeLayout),
		"actorId":    nil,
		"actorRole":  nullable(row.ActorRole),
		"action":     row.Action,
		"entityType": row.EntityType,
		"entityId":   row.EntityID,
		"before":     rawOrNil(row.Before),
		"after":      rawOrNil(row.After),
		"meta":       rawOrNil(row.Meta),
		"prevHash":   nullable(row.PrevHash),
	}
	if row.ActorUserID != nil {
		doc["actorId"] = row.ActorUserID.String()
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	sum := sha3.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func rawOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return json.RawMessage(*s)
}

func chainTime(t time.Time) time.Time {
	return models.Timestamp(t)
}
