package records

import "go.mongodb.org/mongo-driver/v2/bson"

// ParseID decodes the 24-character hex form of a record identifier.
// It never touches the store.
func ParseID(s string) (bson.ObjectID, error) {
	return bson.ObjectIDFromHex(s)
}

// FormatID renders id in the form accepted by ParseID.
func FormatID(id bson.ObjectID) string {
	return id.Hex()
}
