package botapp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	tginfra "github.com/zafa0981-prog/telegram-store-bot/internal/infra/telegram"
	checkoutsvc "github.com/zafa0981-prog/telegram-store-bot/internal/services/checkout"
	gatewaysvc "github.com/zafa0981-prog/telegram-store-bot/internal/services/gateway"
)

const (
	greetingMessage       = "سلام! به فروشگاه فایل خوش آمدی. برای دیدن محصولات /products را بزن."
	emptyCatalogMessage   = "فعلاً محصولی وجود ندارد."
	productNotFoundMsg    = "محصول پیدا نشد."
	invalidDataMessage    = "دادهٔ نامعتبر."
	noPendingPurchaseMsg  = "خرید در حال انتظار پیدا نشد. لطفا ابتدا یک محصول بخرید."
	purchaseNotFoundMsg   = "خرید مورد نظر یافت نشد. شناسه خرید را بررسی کن."
	verifiedMessage       = "پرداخت تایید شد. این هم لینک دانلود شما (مستقیم):\n"
	notVerifiedMessage    = "پرداخت تأیید نشد. اگر پرداخت موفق بوده، لطفاً رسید یا شمارهٔ تراکنش را ارسال کنید یا با پشتیبانی تماس بگیرید."
	adminOnlyMessage      = "فقط ادمین مجاز است."
	noPurchasesMessage    = "خریدی ثبت نشده."
	setGatewayUsage       = "فرمت: /setgateway <zarinpal|idpay|nextpay>"
	unknownGatewayMessage = "درگاه نامعتبر."
	checkoutFailedMessage = "ایجاد لینک پرداخت ممکن نشد. لطفاً دوباره تلاش کنید."
)

var providerLabels = map[gatewaysvc.Name]string{
	gatewaysvc.Zarinpal: "زرین‌پال",
	gatewaysvc.IDPay:    "IDPay",
	gatewaysvc.NextPay:  "NextPay",
}

func (a *App) handleCommand(ctx context.Context, update tginfra.CommandUpdate) error {
	if a.bot == nil {
		return nil
	}

	command := strings.ToLower(strings.TrimSpace(update.Command))
	switch {
	case command == "start":
		return a.handleStart(ctx, update)
	case command == "products":
		return a.handleProducts(ctx, update)
	case strings.HasPrefix(command, "product_"):
		return a.handleProductView(ctx, update, strings.TrimPrefix(command, "product_"))
	case command == "listpurchases":
		return a.handleListPurchases(ctx, update)
	case command == "setgateway":
		return a.handleSetGateway(ctx, update)
	default:
		return nil
	}
}

func (a *App) handleStart(ctx context.Context, update tginfra.CommandUpdate) error {
	if _, err := a.userRepo.EnsureUser(ctx, update.UserID, update.Username); err != nil {
		return fmt.Errorf("register user on /start: %w", err)
	}
	return a.bot.SendText(ctx, update.ChatID, greetingMessage)
}

func (a *App) handleProducts(ctx context.Context, update tginfra.CommandUpdate) error {
	summaries, err := a.checkout.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}
	if len(summaries) == 0 {
		return a.bot.SendText(ctx, update.ChatID, emptyCatalogMessage)
	}

	var sb strings.Builder
	sb.WriteString("محصولات موجود:\n")
	for _, summary := range summaries {
		fmt.Fprintf(&sb, "%s. %s — /product_%s\n", summary.Key, summary.Title, summary.Key)
	}
	return a.bot.SendText(ctx, update.ChatID, sb.String())
}

func (a *App) handleProductView(ctx context.Context, update tginfra.CommandUpdate, key string) error {
	product, err := a.checkout.Browse(ctx, key)
	if err != nil {
		if errors.Is(err, checkoutsvc.ErrProductNotFound) {
			return a.bot.SendText(ctx, update.ChatID, productNotFoundMsg)
		}
		return fmt.Errorf("browse product %q: %w", key, err)
	}

	econ, _ := product.Plan("economic")
	gold, _ := product.Plan("golden")

	caption := fmt.Sprintf("*%s*\n\n%s\n\n", product.Title, product.Description)
	caption += fmt.Sprintf("🟢 نسخه اقتصادی: %d تومان\n🔶 نسخه طلایی: %d تومان\n", econ.Price, gold.Price)

	buttons := [][]tginfra.Button{
		{{Text: fmt.Sprintf("🛒 %s — %d تومان", econ.Name, econ.Price), Data: fmt.Sprintf("buy|%s|economic", product.Key)}},
		{{Text: fmt.Sprintf("💎 %s — %d تومان", gold.Name, gold.Price), Data: fmt.Sprintf("buy|%s|golden", product.Key)}},
	}

	coverPath := a.products.CoverPath(product)
	if coverPath != "" {
		if _, err := os.Stat(coverPath); err == nil {
			return a.bot.SendPhotoFile(ctx, update.ChatID, coverPath, caption, buttons)
		}
	}
	return a.bot.SendTextWithButtons(ctx, update.ChatID, caption, buttons)
}

func (a *App) handleCallback(ctx context.Context, update tginfra.CallbackUpdate) error {
	if a.bot == nil {
		return nil
	}
	if err := a.bot.AnswerCallback(ctx, update.CallbackID, ""); err != nil {
		a.logger.Warn("answer callback failed", zap.Error(err))
	}

	parts := strings.Split(strings.TrimSpace(update.Data), "|")
	switch {
	case len(parts) == 3 && parts[0] == "buy":
		return a.handleBuy(ctx, update, parts[1], parts[2])
	case len(parts) == 4 && parts[0] == "startpay":
		return a.handleStartPay(ctx, update, parts[1], parts[2], parts[3])
	default:
		return a.bot.SendText(ctx, update.ChatID, invalidDataMessage)
	}
}

func (a *App) handleBuy(ctx context.Context, update tginfra.CallbackUpdate, productKey, plan string) error {
	product, err := a.checkout.Browse(ctx, productKey)
	if err != nil {
		if errors.Is(err, checkoutsvc.ErrProductNotFound) {
			return a.bot.SendText(ctx, update.ChatID, productNotFoundMsg)
		}
		return fmt.Errorf("browse product for buy: %w", err)
	}
	tier, ok := product.Plan(plan)
	if !ok {
		return a.bot.SendText(ctx, update.ChatID, invalidDataMessage)
	}

	var buttons [][]tginfra.Button
	for _, name := range a.providerOrder() {
		buttons = append(buttons, []tginfra.Button{{
			Text: providerLabels[name],
			Data: fmt.Sprintf("startpay|%s|%s|%s", productKey, plan, name),
		}})
	}

	text := fmt.Sprintf("میزان: %d تومان\nدرگاه مدنظر را انتخاب کنید:", tier.Price)
	return a.bot.SendTextWithButtons(ctx, update.ChatID, text, buttons)
}

// providerOrder lists every provider with the configured default first.
func (a *App) providerOrder() []gatewaysvc.Name {
	defaultName, err := gatewaysvc.ParseName(a.store.DefaultGateway())
	if err != nil {
		return gatewaysvc.Names()
	}

	order := []gatewaysvc.Name{defaultName}
	for _, name := range gatewaysvc.Names() {
		if name != defaultName {
			order = append(order, name)
		}
	}
	return order
}

func (a *App) handleStartPay(ctx context.Context, update tginfra.CallbackUpdate, productKey, plan, provider string) error {
	name, err := gatewaysvc.ParseName(provider)
	if err != nil {
		return a.bot.SendText(ctx, update.ChatID, invalidDataMessage)
	}

	result, err := a.checkout.BeginCheckout(ctx, checkoutsvc.BeginCheckoutInput{
		TelegramID: update.UserID,
		Username:   update.Username,
		ProductKey: productKey,
		Plan:       plan,
		Provider:   name,
	})
	if err != nil {
		switch {
		case errors.Is(err, checkoutsvc.ErrProductNotFound):
			return a.bot.SendText(ctx, update.ChatID, productNotFoundMsg)
		case errors.Is(err, checkoutsvc.ErrPlanNotFound), errors.Is(err, gatewaysvc.ErrUnknownProvider):
			return a.bot.SendText(ctx, update.ChatID, invalidDataMessage)
		}
		a.logger.Error("begin checkout failed", zap.Error(err))
		return a.bot.SendText(ctx, update.ChatID, checkoutFailedMessage)
	}

	text := fmt.Sprintf(
		"برای پرداخت به این لینک بروید:\n%s\n\nپس از پرداخت، شمارهٔ تراکنش یا کد تراکنش را اینجا ارسال کنید (مثلاً: `تراکنش %d 123456`).",
		result.PayURL, result.PurchaseID,
	)
	if err := a.bot.SendText(ctx, update.ChatID, text); err != nil {
		return err
	}

	if png, err := qrcode.Encode(result.PayURL, qrcode.Medium, 256); err != nil {
		a.logger.Warn("payment link qr encode failed", zap.Error(err))
	} else if err := a.bot.SendPNG(ctx, update.ChatID, "payment.png", png, ""); err != nil {
		a.logger.Warn("payment link qr send failed", zap.Error(err))
	}
	return nil
}

func (a *App) handleText(ctx context.Context, update tginfra.TextUpdate) error {
	if a.bot == nil {
		return nil
	}

	if a.limiter != nil {
		retryAfter, allowed, err := a.limiter.AllowReceipt(ctx, update.UserID)
		if err != nil {
			a.logger.Warn("receipt rate check failed", zap.Error(err))
		} else if !allowed {
			return a.bot.SendText(ctx, update.ChatID,
				fmt.Sprintf("تعداد تلاش‌ها زیاد است. لطفاً %d ثانیه دیگر دوباره امتحان کنید.", retryAfter))
		}
	}

	result, err := a.checkout.SubmitProof(ctx, checkoutsvc.SubmitProofInput{
		TelegramID: update.UserID,
		Username:   update.Username,
		Text:       update.Text,
	})
	if err != nil {
		switch {
		case errors.Is(err, checkoutsvc.ErrPurchaseNotFound):
			if hasExplicitPurchaseID(update.Text) {
				return a.bot.SendText(ctx, update.ChatID, purchaseNotFoundMsg)
			}
			return a.bot.SendText(ctx, update.ChatID, noPendingPurchaseMsg)
		case errors.Is(err, checkoutsvc.ErrValidation):
			return nil
		}
		return fmt.Errorf("submit proof: %w", err)
	}

	if result.Verified {
		return a.bot.SendText(ctx, update.ChatID, verifiedMessage+result.DownloadLink)
	}
	return a.bot.SendText(ctx, update.ChatID, notVerifiedMessage)
}

// hasExplicitPurchaseID mirrors the proof grammar just enough to pick the
// right denial message.
func hasExplicitPurchaseID(text string) bool {
	fields := strings.Fields(text)
	if len(fields) >= 3 {
		return isPositiveInt(fields[1])
	}
	if len(fields) == 2 {
		return isPositiveInt(fields[0])
	}
	return false
}

func isPositiveInt(s string) bool {
	id, err := strconv.ParseInt(s, 10, 64)
	return err == nil && id > 0
}

func (a *App) handleListPurchases(ctx context.Context, update tginfra.CommandUpdate) error {
	if !a.isAdmin(update.UserID) {
		return a.bot.SendText(ctx, update.ChatID, adminOnlyMessage)
	}

	reports, err := a.checkout.ListPurchases(ctx, 50)
	if err != nil {
		return fmt.Errorf("list purchases: %w", err)
	}
	if len(reports) == 0 {
		return a.bot.SendText(ctx, update.ChatID, noPurchasesMessage)
	}

	var sb strings.Builder
	sb.WriteString("خریدها:\n")
	for _, report := range reports {
		success := 0
		if report.Success {
			success = 1
		}
		fmt.Fprintf(&sb, "#%d user:%d product:%s plan:%s amount:%d success:%d ref:%s time:%s\n",
			report.ID, report.TelegramID, report.ProductKey, report.Plan,
			report.Amount, success, report.ProviderRef,
			report.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	return a.bot.SendText(ctx, update.ChatID, sb.String())
}

func (a *App) handleSetGateway(ctx context.Context, update tginfra.CommandUpdate) error {
	if !a.isAdmin(update.UserID) {
		return a.bot.SendText(ctx, update.ChatID, adminOnlyMessage)
	}

	args := strings.Fields(update.Args)
	if len(args) != 1 {
		return a.bot.SendText(ctx, update.ChatID, setGatewayUsage)
	}

	name, err := gatewaysvc.ParseName(args[0])
	if err != nil {
		return a.bot.SendText(ctx, update.ChatID, unknownGatewayMessage)
	}

	if err := a.store.SetDefaultGateway(string(name)); err != nil {
		a.logger.Error("persist default gateway failed", zap.Error(err))
		return a.bot.SendText(ctx, update.ChatID, "ذخیرهٔ تنظیمات ممکن نشد.")
	}

	return a.bot.SendText(ctx, update.ChatID, fmt.Sprintf("درگاه پیش‌فرض به %s تغییر یافت.", name))
}

func (a *App) isAdmin(userID int64) bool {
	return a.cfg.Bot.AdminID != 0 && userID == a.cfg.Bot.AdminID
}
