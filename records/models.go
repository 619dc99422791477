package records

import "go.mongodb.org/mongo-driver/v2/bson"

// Collection names, one pair per tenant database.
const (
	AccountsCollection = "accounts"
	TasksCollection    = "tasks"
)

// Document is the pointer constraint satisfied by every record type.
type Document[T any] interface {
	*T
	GetID() bson.ObjectID
	SetID(id bson.ObjectID)
}

// Account is a tenant user account.
type Account struct {
	ID       bson.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Name     string        `bson:"name" json:"name"`
	Email    string        `bson:"email" json:"email"`
	Password string        `bson:"password" json:"password"`
}

func (a *Account) GetID() bson.ObjectID   { return a.ID }
func (a *Account) SetID(id bson.ObjectID) { a.ID = id }

// Task is a to-do item owned by an account. The owner is not checked for existence.
type Task struct {
	ID          bson.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Title       string        `bson:"title" json:"title"`
	Description string        `bson:"description" json:"description"`
	Completed   bool          `bson:"completed" json:"completed"`
	AccountID   bson.ObjectID `bson:"account_id" json:"account_id" validate:"required"`
}

func (t *Task) GetID() bson.ObjectID   { return t.ID }
func (t *Task) SetID(id bson.ObjectID) { t.ID = id }
