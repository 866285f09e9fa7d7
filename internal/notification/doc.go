// Package notification — обработчик и продюсер email-уведомлений.
//
// Service подписывается на топик email через mq.RegistryBuilder и по типу
// события выбирает тему и шаблон письма. Events публикует запросы на
// отправку для остальных частей системы.
//
// Ошибка отправителя возвращается обработчику, поэтому сообщение уходит
// в retry. Типы без почтового шаблона логируются и подтверждаются.
package notification
