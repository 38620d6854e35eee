package producer

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tutaviendo/storefront/internal/analytics"
	"github.com/tutaviendo/storefront/internal/composer"
	"github.com/tutaviendo/storefront/pkg/models"
)

// TemplateLine is one product of a simulated cart.
type TemplateLine struct {
	ProductID string
	Quantity  int
}

// OrderTemplate describes a simulated customer and what they buy.
type OrderTemplate struct {
	Customer string
	Phone    string
	Address  string
	Comments string
	Payment  string
	Delivery string
	Lines    []TemplateLine
}

// DefaultOrderTemplates matches the products of config.DemoStore.
var DefaultOrderTemplates = []OrderTemplate{
	{Customer: "Lucía", Phone: "+54 9 11 5555-0101", Payment: "Efectivo", Delivery: "Retiro en local",
		Lines: []TemplateLine{{"alfajor", 6}, {"yerba", 1}}},
	{Customer: "Martín", Phone: "+54 9 11 5555-0102", Address: "Av. Corrientes 1234", Payment: "Transferencia", Delivery: "Envío a domicilio",
		Lines: []TemplateLine{{"medialunas", 2}}, Comments: "Tocar timbre 3B"},
	{Customer: "Sofía", Payment: "Mercado Pago", Delivery: "Retiro en local",
		Lines: []TemplateLine{{"dulce", 2}, {"alfajor", 1}}},
	{Customer: "Diego", Phone: "+54 9 11 5555-0104", Address: "Calle 7 nº 880", Payment: "Efectivo", Delivery: "Envío a domicilio",
		Lines: []TemplateLine{{"yerba", 2}, {"dulce", 1}, {"medialunas", 1}}},
}

// SimulatorConfig configures the traffic simulator.
type SimulatorConfig struct {
	Interval time.Duration
	Host     string    // WhatsApp deep link host.
	Out      io.Writer // Where order links are opened. Defaults to os.Stdout.
}

// Simulator plays customers browsing a store and sending orders. Each step
// records a visit, product views and an order in the analytics store, whose
// Sink forwards them to Kafka.
type Simulator struct {
	config    SimulatorConfig
	store     *models.StoreConfig
	analytics *analytics.Store
	templates []OrderTemplate
	composer  *composer.Dispatcher
	sequence  int
	running   bool
	lastLink  string
}

// NewSimulator creates a simulator for store. The analytics store must be
// loaded.
func NewSimulator(cfg SimulatorConfig, store *models.StoreConfig, events *analytics.Store, logger Logger) *Simulator {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &Simulator{
		config:    cfg,
		store:     store,
		analytics: events,
		templates: DefaultOrderTemplates,
		composer:  composer.NewDispatcher(cfg.Host, composer.WriterNavigator{W: cfg.Out}, logger),
		sequence:  1,
	}
}

// BuildOrder fills a cart from template and checks it out.
func (s *Simulator) BuildOrder(template OrderTemplate) (models.Order, error) {
	cart := models.NewCart()
	for _, line := range template.Lines {
		product, ok := s.store.FindProduct(line.ProductID)
		if !ok {
			return models.Order{}, fmt.Errorf("product %q not in store %s", line.ProductID, s.store.ID)
		}
		cart.Add(product, line.Quantity)
	}
	return cart.Checkout(models.CheckoutForm{
		CustomerName:   template.Customer,
		CustomerPhone:  template.Phone,
		Address:        template.Address,
		Comments:       template.Comments,
		PaymentMethod:  template.Payment,
		DeliveryMethod: template.Delivery,
	}, s.store)
}

// Step simulates one customer session, selecting templates round-robin.
func (s *Simulator) Step() error {
	template := s.templates[(s.sequence-1)%len(s.templates)]

	order, err := s.BuildOrder(template)
	if err != nil {
		return fmt.Errorf("building order %d: %w", s.sequence, err)
	}

	session := uuid.NewString()
	if _, err := s.analytics.RecordVisitForSession(s.store.ID, session); err != nil {
		return fmt.Errorf("recording visit: %w", err)
	}
	for _, item := range order.Items {
		if _, err := s.analytics.RecordProductView(s.store.ID, item.Product.ID); err != nil {
			return fmt.Errorf("recording product view: %w", err)
		}
	}

	message := composer.ComposeMessage(order, s.store.MessageTemplate())
	link, err := s.composer.Dispatch(context.Background(), s.store.WhatsAppNumber, message)
	if err != nil {
		return fmt.Errorf("dispatching order %d: %w", s.sequence, err)
	}
	if _, err := s.analytics.RecordOrder(s.store.ID, order); err != nil {
		return fmt.Errorf("recording order: %w", err)
	}

	s.lastLink = link
	s.sequence++
	return nil
}

// LastLink returns the deep link of the last simulated order.
func (s *Simulator) LastLink() string {
	return s.lastLink
}

// Run simulates orders until a signal is received on stopChan.
func (s *Simulator) Run(stopChan <-chan os.Signal) {
	s.running = true
	for s.running {
		select {
		case <-stopChan:
			fmt.Println("\n⚠️  Stop signal received. Stopping simulated traffic...")
			s.running = false
		default:
			if err := s.Step(); err != nil {
				fmt.Printf("Error: %v\n", err)
			} else {
				fmt.Printf("🛒 Order %d sent\n", s.sequence-1)
			}
			time.Sleep(s.config.Interval)
		}
	}
}
