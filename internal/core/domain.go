package core

import (
	"time"
)

const (
	RoleOwner  MemberRole = "owner"
	RoleMember MemberRole = "member"
)

const (
	CategoryIncome  CategoryType = "income"
	CategoryExpense CategoryType = "expense"
)

const (
	BudgetOpen   BudgetStatus = "open"
	BudgetClosed BudgetStatus = "closed"
)

const (
	SourceManual    ExpenseSource = "manual"
	SourceDraft     ExpenseSource = "draft"
	SourceAuto      ExpenseSource = "auto"
	SourceRecurring ExpenseSource = "recurring"
)

const (
	Contribution TransactionType = "contribution"
	Withdrawal   TransactionType = "withdrawal"
)

const (
	TxSourceManual      TransactionSource = "manual"
	TxSourceClosing     TransactionSource = "closing"
	TxSourceExpenseLink TransactionSource = "expense_link"
)

const (
	PurchaseApproved    PurchaseStatus = 1
	PurchaseNeedsReview PurchaseStatus = 2
)

// ClosingDescription labels the contributions created when a month's balance is distributed.
const ClosingDescription = "Distribuição de fechamento"

type (
	MemberRole        string
	CategoryType      string
	BudgetStatus      string
	ExpenseSource     string
	TransactionType   string
	TransactionSource string
	PurchaseStatus    int

	Money struct {
		Cents int64
	}

	// Quantity is a product quantity in thousandths (0.5 kg is Milli 500).
	Quantity struct {
		Milli int64
	}

	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}

	Household struct {
		ID        int64     `json:"id"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"createdAt"`
		Members   []Member  `json:"members"`
	}

	Member struct {
		ID          int64      `json:"id"`
		HouseholdID int64      `json:"householdId"`
		UserID      string     `json:"userId"`
		Role        MemberRole `json:"role"`
		Email       string     `json:"email"`
		Name        string     `json:"name"`
	}

	Category struct {
		ID          int64        `json:"id"`
		HouseholdID int64        `json:"householdId"`
		Name        string       `json:"name"`
		Type        CategoryType `json:"type"`
		Icon        *string      `json:"icon"`
		Color       *string      `json:"color"`
		SortOrder   int          `json:"sortOrder"`
	}

	MonthlyBudget struct {
		ID          int64        `json:"id"`
		HouseholdID int64        `json:"householdId"`
		Year        int          `json:"year"`
		Month       int          `json:"month"`
		Status      BudgetStatus `json:"status"`
		BankBalance *Money       `json:"bankBalance"`
		ClosedAt    *time.Time   `json:"closedAt"`
		CreatedAt   time.Time    `json:"createdAt"`
	}

	IncomeEntry struct {
		ID           int64     `json:"id"`
		BudgetID     int64     `json:"monthlyBudgetId"`
		CategoryID   int64     `json:"categoryId"`
		CategoryName string    `json:"categoryName,omitempty"`
		Description  string    `json:"description"`
		Amount       Money     `json:"amount"`
		CreatedAt    time.Time `json:"createdAt"`
	}

	ExpenseEntry struct {
		ID                   int64         `json:"id"`
		BudgetID             int64         `json:"monthlyBudgetId"`
		CategoryID           int64         `json:"categoryId"`
		CategoryName         string        `json:"categoryName,omitempty"`
		Description          string        `json:"description"`
		Amount               Money         `json:"amount"`
		IsPaid               bool          `json:"isPaid"`
		PaidAt               *time.Time    `json:"paidAt"`
		Source               ExpenseSource `json:"source"`
		SavingsBoxID         *int64        `json:"savingsBoxId"`
		SavingsBoxName       string        `json:"savingsBoxName,omitempty"`
		RecurringExpenseID   *int64        `json:"recurringExpenseId"`
		SavingsTransactionID *int64        `json:"savingsTransactionId"`
		DueDay               *int          `json:"dueDay,omitempty"`
		CreatedAt            time.Time     `json:"createdAt"`
	}

	RecurringExpense struct {
		ID           int64         `json:"id"`
		HouseholdID  int64         `json:"householdId"`
		CategoryID   int64         `json:"categoryId"`
		CategoryName string        `json:"categoryName,omitempty"`
		Description  string        `json:"description"`
		Amount       Money         `json:"amount"`
		DayOfMonth   *int          `json:"dayOfMonth"`
		State        TemplateState `json:"state"`
		CreatedAt    time.Time     `json:"createdAt"`
	}

	SavingsBox struct {
		ID            int64     `json:"id"`
		HouseholdID   int64     `json:"householdId"`
		Name          string    `json:"name"`
		Balance       Money     `json:"balance"`
		MonthlyTarget *Money    `json:"monthlyTarget"`
		GoalAmount    *Money    `json:"goalAmount"`
		Icon          *string   `json:"icon"`
		Color         *string   `json:"color"`
		CreatedAt     time.Time `json:"createdAt"`
	}

	SavingsTransaction struct {
		ID          int64             `json:"id"`
		BoxID       int64             `json:"savingsBoxId"`
		Type        TransactionType   `json:"type"`
		Amount      Money             `json:"amount"`
		Description *string           `json:"description"`
		Source      TransactionSource `json:"source"`
		CreatedAt   time.Time         `json:"createdAt"`
	}

	// SavingsBoxDetail is a box with its history, newest transaction first.
	SavingsBoxDetail struct {
		SavingsBox
		Transactions []SavingsTransaction `json:"transactions"`
		GoalProgress *float64             `json:"goalProgress"`
	}

	Purchase struct {
		ID           int64          `json:"id"`
		UserID       string         `json:"userId"`
		StoreName    *string        `json:"storeName"`
		BoughtAt     *time.Time     `json:"boughtAt"`
		Status       PurchaseStatus `json:"status"`
		TotalValue   Money          `json:"totalValue"`
		ProductCount int            `json:"productCount"`
		Products     []Product      `json:"products,omitempty"`
		CreatedAt    time.Time      `json:"createdAt"`
		UpdatedAt    time.Time      `json:"updatedAt"`
	}

	Product struct {
		ID             int64     `json:"id"`
		PurchaseID     int64     `json:"purchaseId"`
		Code           *string   `json:"code"`
		Description    string    `json:"description"`
		UnitValue      *Money    `json:"unitValue"`
		UnitIdentifier *string   `json:"unitIdentifier"`
		Quantity       *Quantity `json:"quantity"`
		TotalValue     Money     `json:"totalValue"`
		CreatedAt      time.Time `json:"createdAt"`
		UpdatedAt      time.Time `json:"updatedAt"`
	}
)

func (s BudgetStatus) IsOpen() bool { return s == BudgetOpen }

func (t CategoryType) Valid() bool {
	return t == CategoryIncome || t == CategoryExpense
}

func (s ExpenseSource) Valid() bool {
	switch s {
	case SourceManual, SourceDraft, SourceAuto, SourceRecurring:
		return true
	}
	return false
}

func (t TransactionType) Valid() bool {
	return t == Contribution || t == Withdrawal
}

func (s TransactionSource) Valid() bool {
	switch s {
	case TxSourceManual, TxSourceClosing, TxSourceExpenseLink:
		return true
	}
	return false
}

func (s PurchaseStatus) Valid() bool {
	return s == PurchaseApproved || s == PurchaseNeedsReview
}

// Signed returns the amount with the sign it contributes to a box balance.
func (t SavingsTransaction) Signed() int64 {
	if t.Type == Withdrawal {
		return -t.Amount.Cents
	}
	return t.Amount.Cents
}

// IsLinkedAndPaid reports whether the entry must own an expense_link transaction.
func (e ExpenseEntry) IsLinkedAndPaid() bool {
	return e.IsPaid && e.SavingsBoxID != nil
}

// GoalProgress returns balance/goal as a percentage capped at 100, or nil without a positive goal.
func (b SavingsBox) GoalProgress() *float64 {
	if b.GoalAmount == nil || b.GoalAmount.Cents <= 0 {
		return nil
	}
	p := float64(b.Balance.Cents) / float64(b.GoalAmount.Cents) * 100
	if p > 100 {
		p = 100
	}
	return &p
}
