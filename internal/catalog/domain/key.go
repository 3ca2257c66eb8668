package domain

import "strconv"

// Key builds the storage key "<type>:<id>".
func Key(t EntityType, id int64) string {
	return string(t) + ":" + strconv.FormatInt(id, 10)
}
