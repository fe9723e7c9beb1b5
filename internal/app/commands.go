package app

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polydesk/internal/crypto"
	"github.com/alanyoungcy/polydesk/internal/domain"
	"github.com/alanyoungcy/polydesk/internal/errnorm"
	"github.com/alanyoungcy/polydesk/internal/format"
	"github.com/alanyoungcy/polydesk/internal/uistate"
)

const questionWidth = 60

func (a *App) listEvents(ctx context.Context, deps *Dependencies, args []string) error {
	fs := a.flags("events")
	active := fs.String("active", "", "filter by active flag (true|false)")
	search := fs.String("search", "", "search text")
	page := fs.Int("page", 1, "page number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f := domain.EventFilter{Search: *search, Page: a.page(*page)}
	var err error
	if f.Active, err = optionalBool("active", *active); err != nil {
		return err
	}

	res, err := deps.Markets.ListEvents(ctx, f)
	if err != nil {
		return err
	}

	now := time.Now()
	table := tablewriter.NewWriter(a.out)
	table.Header("ID", "Title", "Markets", "Active", "Featured", "Updated")
	for _, e := range res.Data {
		table.Append(
			strconv.FormatInt(e.ID, 10),
			format.Truncate(e.Title, questionWidth),
			strconv.Itoa(e.MarketCount),
			format.Bool(e.Active),
			format.Bool(e.Featured),
			format.Relative(e.UpdatedAt, now),
		)
	}
	if err := table.Render(); err != nil {
		return err
	}
	a.pageFooter(res.Meta)
	return nil
}

func (a *App) showEvent(ctx context.Context, deps *Dependencies, args []string) error {
	id, err := positionalID("event", args)
	if err != nil {
		return err
	}
	e, err := deps.Markets.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	markets, err := deps.Markets.EventMarkets(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s\n", e.Title)
	if e.Description != "" {
		fmt.Fprintf(a.out, "%s\n", e.Description)
	}
	fmt.Fprintf(a.out, "active: %s  featured: %s", format.Bool(e.Active), format.Bool(e.Featured))
	if e.EndDate != nil {
		fmt.Fprintf(a.out, "  ends: %s", format.Full(*e.EndDate))
	}
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out)
	return a.marketTable(markets)
}

func (a *App) listMarkets(ctx context.Context, deps *Dependencies, args []string) error {
	fs := a.flags("markets")
	eventID := fs.Int64("event", 0, "filter by event id")
	active := fs.String("active", "", "filter by active flag (true|false)")
	closed := fs.String("closed", "", "filter by closed flag (true|false)")
	search := fs.String("search", "", "search text")
	volMin := fs.Float64("volume-min", 0, "minimum volume")
	volMax := fs.Float64("volume-max", 0, "maximum volume")
	liqMin := fs.Float64("liquidity-min", 0, "minimum liquidity")
	liqMax := fs.Float64("liquidity-max", 0, "maximum liquidity")
	createdMin := fs.String("created-min", "", "created at or after (RFC 3339 or YYYY-MM-DD)")
	createdMax := fs.String("created-max", "", "created at or before (RFC 3339 or YYYY-MM-DD)")
	updatedMin := fs.String("updated-min", "", "updated at or after (RFC 3339 or YYYY-MM-DD)")
	updatedMax := fs.String("updated-max", "", "updated at or before (RFC 3339 or YYYY-MM-DD)")
	page := fs.Int("page", 1, "page number")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f := domain.MarketFilter{
		Search:       *search,
		VolumeMin:    positiveFloat(*volMin),
		VolumeMax:    positiveFloat(*volMax),
		LiquidityMin: positiveFloat(*liqMin),
		LiquidityMax: positiveFloat(*liqMax),
		Page:         a.page(*page),
	}
	if *eventID > 0 {
		f.EventID = eventID
	}
	var err error
	if f.Active, err = optionalBool("active", *active); err != nil {
		return err
	}
	if f.Closed, err = optionalBool("closed", *closed); err != nil {
		return err
	}
	for _, tf := range []struct {
		name string
		raw  string
		dst  **time.Time
	}{
		{"created-min", *createdMin, &f.CreatedAtMin},
		{"created-max", *createdMax, &f.CreatedAtMax},
		{"updated-min", *updatedMin, &f.UpdatedAtMin},
		{"updated-max", *updatedMax, &f.UpdatedAtMax},
	} {
		if *tf.dst, err = optionalTime(tf.name, tf.raw); err != nil {
			return err
		}
	}

	res, err := deps.Markets.ListMarkets(ctx, f)
	if err != nil {
		return err
	}
	if err := a.marketTable(res.Data); err != nil {
		return err
	}
	a.pageFooter(res.Meta)
	return nil
}

func (a *App) marketTable(markets []domain.Market) error {
	table := tablewriter.NewWriter(a.out)
	table.Header("ID", "Question", "Yes", "No", "Volume", "Liquidity", "Status")
	for _, m := range markets {
		table.Append(
			strconv.FormatInt(m.ID, 10),
			format.Truncate(m.Question, questionWidth),
			format.Percent(m.OutcomeYesPrice),
			format.Percent(m.OutcomeNoPrice),
			format.Volume(m.Volume),
			format.Volume(m.Liquidity),
			marketStatus(m),
		)
	}
	return table.Render()
}

func (a *App) showMarket(ctx context.Context, deps *Dependencies, args []string) error {
	id, err := positionalID("market", args)
	if err != nil {
		return err
	}
	m, err := deps.Markets.GetMarket(ctx, id)
	if err != nil {
		return err
	}

	rows := [][]string{
		{"Question", m.Question},
		{"Event", m.EventTitle},
		{"Status", marketStatus(m)},
		{"YES", fmt.Sprintf("%s ($%s)", format.Percent(m.OutcomeYesPrice), m.OutcomeYesPrice.StringFixed(4))},
		{"NO", fmt.Sprintf("%s ($%s)", format.Percent(m.OutcomeNoPrice), m.OutcomeNoPrice.StringFixed(4))},
		{"Volume", format.Volume(m.Volume)},
		{"Liquidity", format.Volume(m.Liquidity)},
		{"Condition", m.ConditionID},
		{"Created", format.Full(m.CreatedAt)},
		{"Updated", format.Full(m.UpdatedAt)},
	}
	return a.detailTable(rows)
}

func (a *App) listOrders(ctx context.Context, deps *Dependencies, args []string) error {
	fs := a.flags("orders")
	marketID := fs.Int64("market", 0, "filter by market id")
	status := fs.String("status", "", "filter by status")
	side := fs.String("side", "", "filter by side (BUY|SELL)")
	outcome := fs.String("outcome", "", "filter by outcome (YES|NO)")
	page := fs.Int("page", 1, "page number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f, err := orderFilter(*marketID, *status, *side, *outcome)
	if err != nil {
		return err
	}
	f.Page = a.page(*page)

	res, err := deps.Orders.List(ctx, f)
	if err != nil {
		return err
	}

	now := time.Now()
	table := tablewriter.NewWriter(a.out)
	table.Header("ID", "Market", "Side", "Type", "Outcome", "Quantity", "Price", "Status", "Created")
	for _, o := range res.Data {
		table.Append(
			strconv.FormatInt(o.ID, 10),
			orderMarket(o),
			string(o.Side),
			string(o.Type),
			string(o.Outcome),
			o.Quantity.StringFixed(4),
			format.Price(o.Price),
			string(o.Status),
			format.Relative(o.CreatedAt, now),
		)
	}
	if err := table.Render(); err != nil {
		return err
	}
	a.pageFooter(res.Meta)
	return nil
}

func (a *App) showOrder(ctx context.Context, deps *Dependencies, args []string) error {
	id, err := positionalID("order", args)
	if err != nil {
		return err
	}
	o, err := deps.Orders.Get(ctx, id)
	if err != nil {
		return err
	}
	return a.orderDetail(o)
}

func (a *App) orderDetail(o domain.Order) error {
	rows := [][]string{
		{"ID", strconv.FormatInt(o.ID, 10)},
		{"Market", orderMarket(o)},
		{"Side", string(o.Side)},
		{"Type", string(o.Type)},
		{"Outcome", string(o.Outcome)},
		{"Quantity", o.Quantity.StringFixed(4)},
		{"Price", format.Price(o.Price)},
		{"Filled", o.FilledQuantity.StringFixed(4)},
		{"Avg fill", format.Price(o.AverageFillPrice)},
		{"Status", string(o.Status)},
		{"Cancellable", format.Bool(o.CanCancel())},
		{"Idempotency key", o.IdempotencyKey},
		{"Created", format.Full(o.CreatedAt)},
		{"Updated", format.Full(o.UpdatedAt)},
	}
	if o.ExternalOrderID != "" {
		rows = append(rows, []string{"External ID", o.ExternalOrderID})
	}
	if o.FailureReason != "" {
		n := errnorm.Reason(string(o.FailureReason))
		rows = append(rows, []string{"Failure", describe(n)})
	}
	return a.detailTable(rows)
}

func (a *App) submitOrder(ctx context.Context, deps *Dependencies, args []string) error {
	fs := a.flags("submit")
	marketID := fs.Int64("market", 0, "market id")
	side := fs.String("side", string(domain.OrderSideBuy), "BUY or SELL")
	orderType := fs.String("type", string(domain.OrderTypeMarket), "MARKET or LIMIT")
	outcome := fs.String("outcome", string(domain.OutcomeYes), "YES or NO")
	quantity := fs.String("quantity", "", "number of shares")
	amount := fs.String("amount", "", "USDC to spend (BUY only)")
	price := fs.String("price", "", "limit price in (0,1]")
	if err := fs.Parse(args); err != nil {
		return err
	}

	form := domain.OrderForm{
		MarketID: *marketID,
		Side:     domain.OrderSide(strings.ToUpper(*side)),
		Type:     domain.OrderType(strings.ToUpper(*orderType)),
		Outcome:  domain.Outcome(strings.ToUpper(*outcome)),
		Quantity: *quantity,
		Amount:   *amount,
		Price:    *price,
	}
	// The funds gate prices gas from the estimator; a one-shot run has no
	// estimate until it is refreshed.
	if form.Side == domain.OrderSideBuy {
		deps.Gas.Refresh(ctx)
	}

	order, err := deps.Orders.Submit(ctx, form)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Order submitted successfully.")
	return a.orderDetail(order)
}

func (a *App) cancelOrder(ctx context.Context, deps *Dependencies, args []string) error {
	id, err := positionalID("cancel", args)
	if err != nil {
		return err
	}
	order, err := deps.Orders.CancelByID(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Order %d cancelled.\n", order.ID)
	return nil
}

func (a *App) showFunds(ctx context.Context, deps *Dependencies, args []string) error {
	fs := a.flags("funds")
	address := fs.String("address", "", "wallet address (default: configured wallet)")
	spend := fs.String("spend", "0", "USDC the next BUY would spend")
	if err := fs.Parse(args); err != nil {
		return err
	}
	wallet, err := a.walletAddress(deps, *address)
	if err != nil {
		return err
	}
	amount, err := parseSpend(*spend)
	if err != nil {
		return err
	}

	deps.Gas.Refresh(ctx)
	assessment, err := deps.Funds.Assess(ctx, wallet, amount)
	if err != nil {
		return err
	}

	req := assessment.Requirement
	rows := [][]string{
		{"Wallet", assessment.Wallet},
		{"Balance", optionalAmount(assessment.Balance)},
		{"Allowance", optionalAmount(assessment.Allowance)},
		{"Spend", req.Spend.StringFixed(2)},
		{"Buffer", req.Buffer.StringFixed(2)},
		{"Gas (USD)", req.GasUSD.StringFixed(4)},
		{"Required", req.Required.StringFixed(2)},
		{"Decision", string(assessment.Decision)},
	}
	if assessment.Decision == domain.GateNeedsApproval {
		rows = append(rows, []string{"Approve", assessment.ApproveAmount.StringFixed(2)})
	}
	return a.detailTable(rows)
}

func (a *App) approve(ctx context.Context, deps *Dependencies, args []string) error {
	fs := a.flags("approve")
	spend := fs.String("spend", "", "USDC the next BUY will spend")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if deps.Wallet == nil {
		return domain.ErrWalletNotConnected
	}
	amount, err := parseSpend(*spend)
	if err != nil {
		return err
	}

	deps.Gas.Refresh(ctx)
	fmt.Fprintln(a.out, "Sending approval; waiting for confirmation...")
	res, err := deps.Funds.Approve(ctx, deps.Wallet.Address().Hex(), amount)
	if err != nil {
		return err
	}
	rows := [][]string{
		{"Transaction", res.TxHash},
		{"Spender", res.Spender},
		{"Amount", res.Amount.StringFixed(2)},
		{"Allowance", optionalAmount(res.Allowance)},
	}
	return a.detailTable(rows)
}

func (a *App) syncEvents(ctx context.Context, deps *Dependencies, args []string) error {
	fs := a.flags("sync")
	limit := fs.Int("limit", 100, "number of events to sync")
	if err := fs.Parse(args); err != nil {
		return err
	}
	res, err := deps.Markets.SyncEvents(ctx, *limit)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s (job %s)\n", res.Message, res.JobID)
	return nil
}

func (a *App) exportOrders(ctx context.Context, deps *Dependencies, args []string) error {
	fs := a.flags("export")
	marketID := fs.Int64("market", 0, "filter by market id")
	status := fs.String("status", "", "filter by status")
	stdout := fs.Bool("stdout", false, "write JSON lines to standard output instead of object storage")
	list := fs.Bool("list", false, "list previous exports")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *list {
		infos, err := deps.Exporter.ListExports(ctx)
		if err != nil {
			return err
		}
		table := tablewriter.NewWriter(a.out)
		table.Header("Path", "Size", "Modified")
		for _, info := range infos {
			table.Append(info.Path, strconv.FormatInt(info.Size, 10), format.Full(info.LastModified))
		}
		return table.Render()
	}

	f, err := orderFilter(*marketID, *status, "", "")
	if err != nil {
		return err
	}
	if *stdout {
		_, err := deps.Exporter.WriteJSONL(ctx, a.out, f)
		return err
	}
	res, err := deps.Exporter.Export(ctx, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Exported %d orders (%d bytes) to %s\n", res.Orders, res.Bytes, res.Path)
	return nil
}

func (a *App) theme(ctx context.Context, deps *Dependencies, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, deps.State.Snapshot().Theme)
		return nil
	}
	state, err := deps.State.Dispatch(ctx, uistate.Action{
		Type:  uistate.ActionSetTheme,
		Theme: uistate.Theme(strings.ToLower(args[0])),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, state.Theme)
	return nil
}

// encryptKey writes the configured private key to an encrypted key file
// protected by wallet.key_password.
func (a *App) encryptKey(args []string) error {
	fs := a.flags("encrypt-key")
	out := fs.String("out", a.cfg.Wallet.EncryptedKeyPath, "key file to write")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("app: %w: -out is required", ErrUsage)
	}
	key := a.cfg.Wallet.PrivateKey
	if key == "" {
		key = os.Getenv("POLYDESK_WALLET_PRIVATE_KEY")
	}
	if key == "" {
		return fmt.Errorf("app: %w: set wallet.private_key or POLYDESK_WALLET_PRIVATE_KEY", ErrUsage)
	}
	if a.cfg.Wallet.KeyPassword == "" {
		return fmt.Errorf("app: %w: set wallet.key_password or POLYDESK_WALLET_KEY_PASSWORD", ErrUsage)
	}

	wallet, err := crypto.NewWallet(key)
	if err != nil {
		return err
	}
	if err := crypto.WriteEncryptedKey(*out, key, a.cfg.Wallet.KeyPassword); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Encrypted key for %s written to %s\n", wallet.Address().Hex(), *out)
	return nil
}

func (a *App) detailTable(rows [][]string) error {
	table := tablewriter.NewWriter(a.out)
	for _, row := range rows {
		table.Append(row[0], row[1])
	}
	return table.Render()
}

func (a *App) pageFooter(meta domain.PageMeta) {
	if meta.TotalPages == 0 {
		return
	}
	fmt.Fprintf(a.out, "page %d of %d (%d total)\n", meta.CurrentPage, meta.TotalPages, meta.Total)
}

func (a *App) page(n int) domain.Page {
	return domain.Page{Page: n, PageSize: a.cfg.API.PageSize}
}

func (a *App) walletAddress(deps *Dependencies, address string) (string, error) {
	if address != "" {
		if !common.IsHexAddress(address) {
			return "", &domain.ValidationError{Problems: []string{fmt.Sprintf("%q is not a wallet address", address)}}
		}
		return address, nil
	}
	if deps.Wallet == nil {
		return "", domain.ErrWalletNotConnected
	}
	return deps.Wallet.Address().Hex(), nil
}

func positionalID(cmd string, args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("app: %w: polydesk %s <id>", ErrUsage, cmd)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("app: %w: id must be a positive integer, got %q", ErrUsage, args[0])
	}
	return id, nil
}

func optionalBool(name, v string) (*bool, error) {
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("app: %w: -%s must be true or false, got %q", ErrUsage, name, v)
	}
	return &b, nil
}

func optionalTime(name, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("app: %w: -%s must be an RFC 3339 timestamp or YYYY-MM-DD, got %q", ErrUsage, name, v)
}

func positiveFloat(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return &v
}

func orderFilter(marketID int64, status, side, outcome string) (domain.OrderFilter, error) {
	f := domain.OrderFilter{
		Status:  domain.OrderStatus(strings.ToUpper(status)),
		Side:    domain.OrderSide(strings.ToUpper(side)),
		Outcome: domain.Outcome(strings.ToUpper(outcome)),
	}
	if marketID > 0 {
		f.MarketID = &marketID
	}
	var problems []string
	if f.Status != "" && !f.Status.Valid() {
		problems = append(problems, fmt.Sprintf("unknown status %q", status))
	}
	if f.Side != "" && !f.Side.Valid() {
		problems = append(problems, fmt.Sprintf("unknown side %q", side))
	}
	if f.Outcome != "" && !f.Outcome.Valid() {
		problems = append(problems, fmt.Sprintf("unknown outcome %q", outcome))
	}
	if len(problems) > 0 {
		return f, &domain.ValidationError{Problems: problems}
	}
	return f, nil
}

func parseSpend(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || d.IsNegative() {
		return decimal.Zero, &domain.ValidationError{Problems: []string{"spend must be a non-negative amount"}}
	}
	return d, nil
}

func marketStatus(m domain.Market) string {
	switch {
	case m.Closed:
		return "closed"
	case !m.Active:
		return "inactive"
	default:
		return "active"
	}
}

func orderMarket(o domain.Order) string {
	if o.Market != nil && o.Market.Question != "" {
		return format.Truncate(o.Market.Question, 40)
	}
	return strconv.FormatInt(o.MarketID, 10)
}

func optionalAmount(d *decimal.Decimal) string {
	if d == nil {
		return "loading"
	}
	return d.StringFixed(2)
}

func describe(n errnorm.Normalized) string {
	if n.Title == "" {
		return n.Message
	}
	return n.Title + ": " + n.Message
}

// Describe renders err for the terminal in its normalized display form.
func Describe(err error) string {
	n := errnorm.Normalize(err)
	s := describe(n)
	if n.Details != "" {
		s += "\n" + n.Details
	}
	if n.Action != "" {
		s += "\n-> " + n.Action
	}
	return s
}
