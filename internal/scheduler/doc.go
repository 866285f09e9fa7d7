// Package scheduler запускает периодические служебные задачи по cron-расписанию.
//
// Inspector раз в тик опрашивает все очереди каждого топика, обновляет
// метрику notifier_queue_depth и пишет предупреждение, если dead-letter
// очередь не пуста.
//
// Структура:
//   - scheduler.go — Inspector (Start, Stop, Tick)
//   - cron.go      — парсинг и проверка cron-выражений
//
// Использование:
//
//	insp, err := scheduler.NewInspector(scheduler.Config{
//	    Inspector: conn,        // *mq.Connection
//	    Registry:  registry,
//	    Schedule:  "@every 1m",
//	    Logger:    logger,
//	})
//	if err != nil { ... }
//	insp.Start(ctx)
//	defer insp.Stop()
package scheduler
