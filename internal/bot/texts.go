package bot

const (
	welcomeText = "👋 Добро пожаловать!\n\n" +
		"Вы подписаны на получение прайс-листов.\n" +
		"Чтобы отписаться, нажмите /stop"
	welcomeBackText = "👋 С возвращением!\n\n" +
		"Подписка на прайс-листы снова активна.\n" +
		"Чтобы отписаться, нажмите /stop"
	alreadySubscribedText = "✅ Вы уже подписаны на получение прайс-листов.\n" +
		"Чтобы отписаться, нажмите /stop"
	stoppedText = "❌ Вы отписались от рассылки прайс-листов.\n" +
		"Чтобы подписаться снова, напишите /start"

	accessDeniedText = "🚫 Доступ запрещён"
	adminPanelTitle  = "👑 <b>Панель администратора</b>\n\nКоманды:"

	uploadPromptText   = "📤 Отправьте файл прайс-листа (PDF, XLSX, JPG, PNG)"
	badFormatText      = "❌ Неподдерживаемый формат. Разрешены: PDF, XLSX, XLS, JPG, PNG"
	noPriceListsText   = "📭 Нет загруженных прайс-листов. Сначала /upload"
	badNumberText      = "❌ Неверный номер. Попробуйте снова."
	priceNotFoundText  = "❌ Прайс-лист не найден."
	selectionLostText  = "❌ Ошибка выбора прайс-листа"
	cancelledText      = "❎ Действие отменено"
	nothingToCancel    = "Нечего отменять"
	defaultCaption     = "📄 Ваш прайс-лист"
	skipCaptionMarker  = "-"
	launchFailedFormat = "❌ Не удалось запустить рассылку: %v"
)
