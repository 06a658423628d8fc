package core

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxTextLen       = 255
	maxIconLen       = 50
	maxUnitIDLen     = 10
	maxReceiptImages = 3
	maxQuantityMilli = 1_000_000_000
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Patch distinguishes an absent field (Set false) from an explicit null (Set true, Value nil).
type Patch[T any] struct {
	Set   bool
	Value *T
}

func (p *Patch[T]) UnmarshalJSON(data []byte) error {
	p.Set = true
	if string(data) == "null" {
		p.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	p.Value = &v
	return nil
}

// Apply returns the patched value of current.
func (p Patch[T]) Apply(current *T) *T {
	if !p.Set {
		return current
	}
	return p.Value
}

// SetTo builds a patch that assigns v.
func SetTo[T any](v T) Patch[T] {
	return Patch[T]{Set: true, Value: &v}
}

type (
	CreateHouseholdInput struct {
		Name string `json:"name"`
	}

	InviteMemberInput struct {
		Email string `json:"email"`
	}

	CreateCategoryInput struct {
		Name      string       `json:"name"`
		Type      CategoryType `json:"type"`
		Icon      *string      `json:"icon"`
		Color     *string      `json:"color"`
		SortOrder int          `json:"sortOrder"`
	}

	UpdateCategoryInput struct {
		Name      *string       `json:"name"`
		Icon      Patch[string] `json:"icon"`
		Color     Patch[string] `json:"color"`
		SortOrder *int          `json:"sortOrder"`
	}

	CreateIncomeInput struct {
		Description string `json:"description"`
		Amount      Money  `json:"amount"`
		CategoryID  int64  `json:"categoryId"`
	}

	UpdateIncomeInput struct {
		Description *string `json:"description"`
		Amount      *Money  `json:"amount"`
		CategoryID  *int64  `json:"categoryId"`
	}

	CreateExpenseInput struct {
		Description        string        `json:"description"`
		Amount             Money         `json:"amount"`
		CategoryID         int64         `json:"categoryId"`
		IsPaid             bool          `json:"isPaid"`
		Source             ExpenseSource `json:"source"`
		SavingsBoxID       *int64        `json:"savingsBoxId"`
		RecurringExpenseID *int64        `json:"recurringExpenseId"`
	}

	UpdateExpenseInput struct {
		Description  *string      `json:"description"`
		Amount       *Money       `json:"amount"`
		CategoryID   *int64       `json:"categoryId"`
		IsPaid       *bool        `json:"isPaid"`
		SavingsBoxID Patch[int64] `json:"savingsBoxId"`
	}

	CreateRecurringInput struct {
		Description string `json:"description"`
		Amount      Money  `json:"amount"`
		CategoryID  int64  `json:"categoryId"`
		DayOfMonth  *int   `json:"dayOfMonth"`
	}

	UpdateRecurringInput struct {
		Description *string    `json:"description"`
		Amount      *Money     `json:"amount"`
		CategoryID  *int64     `json:"categoryId"`
		DayOfMonth  Patch[int] `json:"dayOfMonth"`
	}

	CreateSavingsBoxInput struct {
		Name          string  `json:"name"`
		MonthlyTarget *Money  `json:"monthlyTarget"`
		GoalAmount    *Money  `json:"goalAmount"`
		Icon          *string `json:"icon"`
		Color         *string `json:"color"`
	}

	UpdateSavingsBoxInput struct {
		Name          *string       `json:"name"`
		MonthlyTarget Patch[Money]  `json:"monthlyTarget"`
		GoalAmount    Patch[Money]  `json:"goalAmount"`
		Icon          Patch[string] `json:"icon"`
		Color         Patch[string] `json:"color"`
	}

	SavingsTransactionInput struct {
		Type        TransactionType   `json:"type"`
		Amount      Money             `json:"amount"`
		Description *string           `json:"description"`
		Source      TransactionSource `json:"source"`
	}

	Allocation struct {
		SavingsBoxID int64 `json:"savingsBoxId"`
		Amount       Money `json:"amount"`
	}

	ReconcileInput struct {
		BankBalance Money `json:"bankBalance"`
	}

	DistributeInput struct {
		Allocations []Allocation `json:"allocations"`
	}

	ProductInput struct {
		Code           *string   `json:"code"`
		Description    string    `json:"description"`
		UnitValue      *Money    `json:"unitValue"`
		UnitIdentifier *string   `json:"unitIdentifier"`
		Quantity       *Quantity `json:"quantity"`
		TotalValue     Money     `json:"totalValue"`
	}

	UpdateProductInput struct {
		Code           Patch[string]   `json:"code"`
		Description    *string         `json:"description"`
		UnitValue      Patch[Money]    `json:"unitValue"`
		UnitIdentifier Patch[string]   `json:"unitIdentifier"`
		Quantity       Patch[Quantity] `json:"quantity"`
		TotalValue     *Money          `json:"totalValue"`
	}

	UpdatePurchaseInput struct {
		StoreName Patch[string]    `json:"storeName"`
		BoughtAt  Patch[time.Time] `json:"boughtAt"`
		Status    *PurchaseStatus  `json:"status"`
	}

	// ReceiptData is a purchase as extracted from a receipt or supplied by a batch import.
	ReceiptData struct {
		StoreName    *string        `json:"storeName"`
		PurchaseDate *string        `json:"purchaseDate"`
		TotalValue   Money          `json:"totalValue"`
		Products     []ProductInput `json:"products"`
	}

	PurchaseFilter struct {
		Search    string
		Status    PurchaseStatus
		DateFrom  *time.Time
		DateTo    *time.Time
		PriceMin  *Money
		PriceMax  *Money
		SortBy    string
		SortOrder string
		Page      int
		PageSize  int
	}
)

func checkText(v *ValidationError, field, s string, required bool, max int) {
	trimmed := strings.TrimSpace(s)
	switch {
	case required && trimmed == "":
		if field == "name" {
			v.Add(field, ErrEmptyName)
		} else {
			v.Add(field, ErrEmptyDescription)
		}
	case utf8.RuneCountInString(s) > max:
		v.Add(field, ErrTooLong)
	}
}

func checkOptionalText(v *ValidationError, field string, s *string, max int) {
	if s != nil && utf8.RuneCountInString(*s) > max {
		v.Add(field, ErrTooLong)
	}
}

func checkColor(v *ValidationError, c *string) {
	if c != nil && !colorPattern.MatchString(*c) {
		v.Add("color", ErrInvalidColor)
	}
}

func checkPositive(v *ValidationError, field string, m *Money) {
	switch {
	case m == nil:
	case m.Cents <= 0:
		v.Add(field, ErrInvalidAmount)
	case m.Cents > MaxAmountCents:
		v.Add(field, ErrAmountTooLarge)
	}
}

func checkQuantity(v *ValidationError, field string, q *Quantity) {
	switch {
	case q == nil:
	case q.Milli <= 0:
		v.Add(field, ErrInvalidAmount)
	case q.Milli > maxQuantityMilli:
		v.Add(field, ErrAmountTooLarge)
	}
}

func checkID(v *ValidationError, field string, id *int64) {
	if id != nil && *id <= 0 {
		v.Add(field, ErrInvalidID)
	}
}

func checkDay(v *ValidationError, d *int) {
	if d != nil && (*d < 1 || *d > 31) {
		v.Add("dayOfMonth", ErrInvalidDay)
	}
}

func (in CreateHouseholdInput) Validate() error {
	var v ValidationError
	checkText(&v, "name", in.Name, true, maxTextLen)
	return v.Err()
}

func (in InviteMemberInput) Validate() error {
	var v ValidationError
	email := strings.TrimSpace(in.Email)
	at := strings.LastIndex(email, "@")
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t") || !strings.Contains(email[at:], ".") {
		v.Add("email", ErrInvalidEnum)
	}
	return v.Err()
}

func (in CreateCategoryInput) Validate() error {
	var v ValidationError
	checkText(&v, "name", in.Name, true, maxTextLen)
	if !in.Type.Valid() {
		v.Add("type", ErrInvalidEnum)
	}
	checkOptionalText(&v, "icon", in.Icon, maxIconLen)
	checkColor(&v, in.Color)
	return v.Err()
}

func (in UpdateCategoryInput) Validate() error {
	var v ValidationError
	if in.Name != nil {
		checkText(&v, "name", *in.Name, true, maxTextLen)
	}
	checkOptionalText(&v, "icon", in.Icon.Value, maxIconLen)
	checkColor(&v, in.Color.Value)
	return v.Err()
}

func (in CreateIncomeInput) Validate() error {
	var v ValidationError
	checkText(&v, "description", in.Description, true, maxTextLen)
	checkPositive(&v, "amount", &in.Amount)
	if in.CategoryID <= 0 {
		v.Add("categoryId", ErrInvalidID)
	}
	return v.Err()
}

func (in UpdateIncomeInput) Validate() error {
	var v ValidationError
	if in.Description != nil {
		checkText(&v, "description", *in.Description, true, maxTextLen)
	}
	checkPositive(&v, "amount", in.Amount)
	checkID(&v, "categoryId", in.CategoryID)
	return v.Err()
}

// Normalize fills defaults the way an omitted JSON field would be read.
func (in *CreateExpenseInput) Normalize() {
	if in.Source == "" {
		in.Source = SourceManual
	}
}

func (in CreateExpenseInput) Validate() error {
	var v ValidationError
	checkText(&v, "description", in.Description, true, maxTextLen)
	checkPositive(&v, "amount", &in.Amount)
	if in.CategoryID <= 0 {
		v.Add("categoryId", ErrInvalidID)
	}
	if !in.Source.Valid() {
		v.Add("source", ErrInvalidEnum)
	}
	checkID(&v, "savingsBoxId", in.SavingsBoxID)
	checkID(&v, "recurringExpenseId", in.RecurringExpenseID)
	return v.Err()
}

func (in UpdateExpenseInput) Validate() error {
	var v ValidationError
	if in.Description != nil {
		checkText(&v, "description", *in.Description, true, maxTextLen)
	}
	checkPositive(&v, "amount", in.Amount)
	checkID(&v, "categoryId", in.CategoryID)
	checkID(&v, "savingsBoxId", in.SavingsBoxID.Value)
	return v.Err()
}

func (in CreateRecurringInput) Validate() error {
	var v ValidationError
	checkText(&v, "description", in.Description, true, maxTextLen)
	checkPositive(&v, "amount", &in.Amount)
	if in.CategoryID <= 0 {
		v.Add("categoryId", ErrInvalidID)
	}
	checkDay(&v, in.DayOfMonth)
	return v.Err()
}

func (in UpdateRecurringInput) Validate() error {
	var v ValidationError
	if in.Description != nil {
		checkText(&v, "description", *in.Description, true, maxTextLen)
	}
	checkPositive(&v, "amount", in.Amount)
	checkID(&v, "categoryId", in.CategoryID)
	checkDay(&v, in.DayOfMonth.Value)
	return v.Err()
}

func (in CreateSavingsBoxInput) Validate() error {
	var v ValidationError
	checkText(&v, "name", in.Name, true, maxTextLen)
	checkPositive(&v, "monthlyTarget", in.MonthlyTarget)
	checkPositive(&v, "goalAmount", in.GoalAmount)
	checkOptionalText(&v, "icon", in.Icon, maxIconLen)
	checkColor(&v, in.Color)
	return v.Err()
}

func (in UpdateSavingsBoxInput) Validate() error {
	var v ValidationError
	if in.Name != nil {
		checkText(&v, "name", *in.Name, true, maxTextLen)
	}
	checkPositive(&v, "monthlyTarget", in.MonthlyTarget.Value)
	checkPositive(&v, "goalAmount", in.GoalAmount.Value)
	checkOptionalText(&v, "icon", in.Icon.Value, maxIconLen)
	checkColor(&v, in.Color.Value)
	return v.Err()
}

func (in *SavingsTransactionInput) Normalize() {
	if in.Source == "" {
		in.Source = TxSourceManual
	}
}

// Validate rejects expense_link: those transactions are owned by an expense entry.
func (in SavingsTransactionInput) Validate() error {
	var v ValidationError
	if !in.Type.Valid() {
		v.Add("type", ErrInvalidEnum)
	}
	checkPositive(&v, "amount", &in.Amount)
	checkOptionalText(&v, "description", in.Description, maxTextLen)
	if !in.Source.Valid() || in.Source == TxSourceExpenseLink {
		v.Add("source", ErrInvalidEnum)
	}
	return v.Err()
}

func (in ReconcileInput) Validate() error {
	var v ValidationError
	switch {
	case in.BankBalance.Cents < 0:
		v.Add("bankBalance", ErrInvalidAmount)
	case in.BankBalance.Cents > MaxAmountCents:
		v.Add("bankBalance", ErrAmountTooLarge)
	}
	return v.Err()
}

func (in DistributeInput) Validate() error {
	var v ValidationError
	if len(in.Allocations) == 0 {
		v.Add("allocations", ErrInvalidAmount)
	}
	for _, a := range in.Allocations {
		if a.SavingsBoxID <= 0 {
			v.Add("allocations.savingsBoxId", ErrInvalidID)
		}
		checkPositive(&v, "allocations.amount", &a.Amount)
	}
	if _, ok := in.sum(); !ok {
		v.Add("allocations", ErrAmountTooLarge)
	}
	return v.Err()
}

// Total returns the sum of all allocation amounts. Validate rejects inputs whose sum
// passes MaxBalanceCents, so the total of a validated input is exact.
func (in DistributeInput) Total() Money {
	total, _ := in.sum()
	return Money{Cents: total}
}

func (in DistributeInput) sum() (int64, bool) {
	var total int64
	for _, a := range in.Allocations {
		var ok bool
		if total, ok = AddCents(total, a.Amount.Cents); !ok {
			return 0, false
		}
	}
	return total, true
}

func (in ProductInput) validateInto(v *ValidationError, prefix string, requireDescription bool) {
	checkOptionalText(v, prefix+"code", in.Code, maxTextLen)
	checkText(v, prefix+"description", in.Description, requireDescription, maxTextLen)
	checkPositive(v, prefix+"unitValue", in.UnitValue)
	checkOptionalText(v, prefix+"unitIdentifier", in.UnitIdentifier, maxUnitIDLen)
	checkQuantity(v, prefix+"quantity", in.Quantity)
	checkPositive(v, prefix+"totalValue", &in.TotalValue)
}

func (in ProductInput) Validate() error {
	var v ValidationError
	in.validateInto(&v, "", true)
	return v.Err()
}

func (in UpdateProductInput) Validate() error {
	var v ValidationError
	checkOptionalText(&v, "code", in.Code.Value, maxTextLen)
	if in.Description != nil {
		checkText(&v, "description", *in.Description, true, maxTextLen)
	}
	checkPositive(&v, "unitValue", in.UnitValue.Value)
	checkOptionalText(&v, "unitIdentifier", in.UnitIdentifier.Value, maxUnitIDLen)
	checkQuantity(&v, "quantity", in.Quantity.Value)
	checkPositive(&v, "totalValue", in.TotalValue)
	return v.Err()
}

func (in UpdatePurchaseInput) Validate() error {
	var v ValidationError
	checkOptionalText(&v, "storeName", in.StoreName.Value, maxTextLen)
	if in.Status != nil && !in.Status.Valid() {
		v.Add("status", ErrInvalidEnum)
	}
	return v.Err()
}

// Validate checks a receipt the way extracted data is trusted: description may be empty,
// as the vision service sometimes cannot read a line.
func (in ReceiptData) Validate() error {
	var v ValidationError
	checkOptionalText(&v, "storeName", in.StoreName, maxTextLen)
	checkPositive(&v, "totalValue", &in.TotalValue)
	if len(in.Products) == 0 {
		v.Add("products", ErrInvalidAmount)
	}
	for _, p := range in.Products {
		p.validateInto(&v, "products.", false)
	}
	if _, ok := in.productsSum(); !ok {
		v.Add("products", ErrAmountTooLarge)
	}
	return v.Err()
}

// BoughtAt parses PurchaseDate, accepting a date or an RFC 3339 timestamp. Unparseable dates yield nil.
func (in ReceiptData) BoughtAt() *time.Time {
	if in.PurchaseDate == nil {
		return nil
	}
	s := strings.TrimSpace(*in.PurchaseDate)
	for _, layout := range []string{time.RFC3339, "2006-01-02", "02/01/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// ProductsTotal is the purchase total implied by the product lines.
func (in ReceiptData) ProductsTotal() Money {
	total, _ := in.productsSum()
	return Money{Cents: total}
}

func (in ReceiptData) productsSum() (int64, bool) {
	var total int64
	for _, p := range in.Products {
		var ok bool
		if total, ok = AddCents(total, p.TotalValue.Cents); !ok {
			return 0, false
		}
	}
	return total, true
}

// ValidateImages checks a receipt scan request: one to three non-empty base64 payloads.
func ValidateImages(images []string) error {
	var v ValidationError
	if len(images) == 0 || len(images) > maxReceiptImages {
		v.Add("images", ErrInvalidEnum)
	}
	for _, img := range images {
		if strings.TrimSpace(img) == "" {
			v.Add("images", ErrEmptyDescription)
		}
	}
	return v.Err()
}

// Normalize clamps paging and ordering to supported values.
func (f *PurchaseFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 10
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
	switch f.SortBy {
	case "storeName", "boughtAt", "totalValue", "status", "createdAt":
	default:
		f.SortBy = "boughtAt"
	}
	if f.SortOrder != "asc" {
		f.SortOrder = "desc"
	}
	if !f.Status.Valid() {
		f.Status = 0
	}
}
