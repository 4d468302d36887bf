package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// namespace — пространство имён для детерминированных идентификаторов.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("contribution-tracker"))

// RecordID выводит идентификатор записи из вида, владельца, периода и порядкового номера.
// Одинаковые входные данные всегда дают один и тот же UUID (версия 5).
func RecordID(kind, owner string, period uint64, seq int) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(fmt.Sprintf("%s:%s:%d:%d", kind, owner, period, seq)))
}

// ContributionID — идентификатор seq-го вклада участника в периоде.
// seq равен длине списка вкладов участника на момент отправки.
func ContributionID(contributor string, period uint64, seq int) uuid.UUID {
	return RecordID("contribution", contributor, period, seq)
}
