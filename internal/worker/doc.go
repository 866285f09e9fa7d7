// Package worker управляет жизненным циклом доставки сообщений.
//
// # Обзор
//
// Worker — stateless компонент notifier, который для каждого топика
// из mq.Registry запускает mq.Consumer на primary очередь. Consumer
// подтверждает успешные сообщения, а упавшие передаёт mq.Router:
// reject в retry-очередь или копия в dead-letter exchange.
//
// Workers масштабируются горизонтально: несколько экземпляров
// потребляют из одних и тех же очередей.
//
// # Использование
//
//	w := worker.New(worker.Config{
//	    Source:   conn,     // *mq.Connection
//	    Registry: registry,
//	    Router:   router,
//	    Broker:   cfg.Broker,
//	    Logger:   logger,
//	})
//
//	if err := w.Start(ctx); err != nil { ... }
//	defer w.Stop()
//
// # Остановка
//
// Stop отменяет consumer'ов и ждёт их горутины. Контекст обработчика
// отвязан от контекста consumer'а, поэтому сообщение в работе
// завершается ack или reject, а не обрывается.
package worker
