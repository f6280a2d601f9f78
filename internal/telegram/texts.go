package telegram

// User-facing texts. The audience is Russian-speaking marketplace sellers.
const (
	msgMenuHint = "👆 Используйте /start для открытия меню."

	msgWelcome = "👤 Имя: %s%s\n💰 Баланс: %d токенов\n⚡ Модель: %s\n\n👇 Выберите раздел в меню ниже."

	msgCreatePhotoIntro = "🎨 *Создание фото*\n\n" +
		"Отправьте описание изображения, которое хотите создать или отредактировать.\n" +
		"Например: _«Красивый закат над горами с отражением в озере»_\n\n" +
		"Можно приложить до %d фото с подписью.\n" +
		"💰 Стоимость: %d токенов за изображение (вариантов: %d). Ваш баланс: %d."

	msgAnalyzeIntro = "📊 *Анализ CTR карточки товара*\n\n" +
		"📸 Отправьте фото карточки товара или скриншот с маркетплейса.\n\n" +
		"Я проанализирую:\n" +
		"• Визуальную привлекательность\n" +
		"• Читаемость заголовка\n" +
		"• Качество презентации товара\n" +
		"• И дам рекомендации по улучшению CTR\n\n" +
		"💰 Стоимость: %d токенов. Ваш баланс: %d."

	msgAnalyzeNeedsPhoto = "📸 Пожалуйста, отправьте *фото* карточки товара, а не текст.\n\n" +
		"Я анализирую только изображения."

	msgCaptionRequired = "⚠️ Пожалуйста, отправьте изображение с текстовым описанием в подписи.\n\n" +
		"Например: добавьте подпись _«добавь шляпу этому коту»_ к вашему фото."

	msgAlbumCaptionRequired = "⚠️ Альбом без подписи. Отправьте фото заново, добавив описание в подпись к одному из них."

	msgAlbumTruncated = "⚠️ Можно обработать не более %d изображений, лишние не учитываю."

	msgInsufficientBalance = "❌ Недостаточно токенов!\n\nТребуется: %d токенов\nВаш баланс: %d токенов"

	msgGenerationFailed = "❌ Не удалось сгенерировать изображение."

	msgAnalysisFailed = "❌ Не удалось проанализировать изображение. Попробуйте другое фото."

	msgGenericFailure = "❌ Произошла ошибка. Попробуйте позже."

	msgBalance = "💰 Ваш баланс: %d токенов\n\nСтоимость операций:\n• Создание фото — %d токенов за изображение\n• Анализ CTR — %d токенов"

	msgHelp = "ℹ️ Что умеет бот:\n\n" +
		"🎨 /create_photo — генерация фото товара по описанию (можно с референсами)\n" +
		"📊 /analyze_ctr — анализ карточки товара и рекомендации по CTR\n" +
		"💰 /balance — баланс токенов\n\n" +
		"После анализа CTR можно одной кнопкой получить улучшенную карточку."

	msgCountPrompt = "🖼 Сколько вариантов изображения генерировать за один запрос?"

	msgCountSaved = "✅ Буду генерировать вариантов: %d."

	msgProgressGenerating = "🎨 Генерирую изображение"

	msgProgressProcessing = "🎨 Обрабатываю изображение"

	msgProgressAnalyzing = "📊 Анализирую карточку товара"

	msgProgressImproving = "🚀 Улучшаю карточку товара"

	msgAnalysisHeader = "📊 *Результат анализа CTR:*\n\n%s"

	msgImproveOffer = "✨ Хотите, я сразу применю рекомендации и создам улучшенную карточку?"

	msgImproveMissing = "❌ Данные анализа не найдены. Пожалуйста, сначала проведите анализ CTR."

	msgResultCaption = "🎨 Ваше изображение готово!\n\nПромпт: %s\n💰 Списано: %d токенов. Баланс: %d."

	msgResultBatchCaption = "🎨 Готово! Вариантов: %d из %d.\n💰 Списано: %d токенов. Баланс: %d."

	msgDocumentCaption = "📥 Изображение в оригинальном качестве"

	msgUnknownCommand = "Неизвестная команда. Используйте /start."
)
