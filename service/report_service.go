package service

import (
	"context"
	"errors"
	"time"

	"threatlens/database"
	"threatlens/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ReportService is the durable result sink: one report per domain,
// overwritten on each completed analysis.
type ReportService struct{}

func NewReportService() *ReportService {
	return &ReportService{}
}

// Upsert stores a completed report keyed by domain. Idempotent: running
// the same domain twice keeps a single record.
func (s *ReportService) Upsert(ctx context.Context, report *models.Report) error {
	if report.Domain == "" {
		return errors.New("report has no domain")
	}

	collection := database.GetCollection(models.CollectionReports)

	update := bson.M{"$set": bson.M{
		"num_subdomains":  report.NumSubdomains,
		"num_ips":         report.NumIPs,
		"port_alerts":     report.PortAlerts,
		"software_alerts": report.SoftwareAlerts,
		"port_score":      report.PortScore,
		"software_score":  report.SoftwareScore,
		"leak_score":      report.LeakScore,
		"final_score":     report.FinalScore,
		"num_emails":      report.NumEmails,
		"num_passwords":   report.NumPasswords,
		"num_hashes":      report.NumHashes,
		"leaked_data":     report.LeakedData,
		"timestamp":       report.Timestamp,
	}}

	_, err := collection.UpdateOne(ctx,
		bson.M{"domain": report.Domain},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}

// GetByDomain fetches the stored report for a domain.
func (s *ReportService) GetByDomain(ctx context.Context, domain string) (*models.Report, error) {
	collection := database.GetCollection(models.CollectionReports)

	var report models.Report
	err := collection.FindOne(ctx, bson.M{"domain": domain}).Decode(&report)
	if err == mongo.ErrNoDocuments {
		return nil, errors.New("report not found")
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// List returns stored reports, newest first, with pagination.
func (s *ReportService) List(ctx context.Context, page, pageSize int) ([]*models.Report, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	collection := database.GetCollection(models.CollectionReports)

	total, err := collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.M{"timestamp": -1}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))

	cursor, err := collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var reports []*models.Report
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}

// Delete removes the stored report for a domain.
func (s *ReportService) Delete(ctx context.Context, domain string) error {
	collection := database.GetCollection(models.CollectionReports)
	result, err := collection.DeleteOne(ctx, bson.M{"domain": domain})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return errors.New("report not found")
	}
	return nil
}

// timeoutCtx is a small helper for handler-free service calls.
func timeoutCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}
