package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vcscsvcscs/rxtag/pkg/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Mongo collection names
const (
	CatalogCollection     = "medication_catalog"
	MedicationsCollection = "medications"
)

// ConnectMongo opens a client, verifies it with a ping and returns the named database
func ConnectMongo(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client, client.Database(database), nil
}

// EnsureMongoIndexes creates the indexes used by the lookups below
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(CatalogCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "name", Value: 1}, {Key: "position", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create catalog index: %w", err)
	}

	_, err = db.Collection(MedicationsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "prescriptionId", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create medications index: %w", err)
	}

	return nil
}

// MongoCatalogRepository reads the medication catalog from MongoDB
type MongoCatalogRepository struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewMongoCatalogRepository creates a new MongoCatalogRepository
func NewMongoCatalogRepository(db *mongo.Database, logger *zap.Logger) *MongoCatalogRepository {
	return &MongoCatalogRepository{
		coll:   db.Collection(CatalogCollection),
		logger: logger,
	}
}

// FindByName returns the lowest-position entry whose name equals name exactly
func (r *MongoCatalogRepository) FindByName(ctx context.Context, name string) (*model.CatalogEntry, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "position", Value: 1}})

	var entry model.CatalogEntry
	err := r.coll.FindOne(ctx, bson.M{"name": name}, opts).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		r.logger.Error("failed to find catalog entry", zap.Error(err), zap.String("name", name))
		return nil, fmt.Errorf("failed to find catalog entry: %w", err)
	}

	return &entry, nil
}

// Add inserts or replaces a catalog entry
func (r *MongoCatalogRepository) Add(ctx context.Context, entry model.CatalogEntry) error {
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": entry.ID}, entry, options.Replace().SetUpsert(true))
	if err != nil {
		r.logger.Error("failed to add catalog entry", zap.Error(err), zap.String("catalog_id", entry.ID))
		return fmt.Errorf("failed to add catalog entry: %w", err)
	}
	return nil
}

// MongoMedicationRepository stores medication records as documents
type MongoMedicationRepository struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewMongoMedicationRepository creates a new MongoMedicationRepository
func NewMongoMedicationRepository(db *mongo.Database, logger *zap.Logger) *MongoMedicationRepository {
	return &MongoMedicationRepository{
		coll:   db.Collection(MedicationsCollection),
		logger: logger,
	}
}

// Create inserts a medication record
func (r *MongoMedicationRepository) Create(ctx context.Context, rec *model.MedicationRecord) error {
	if _, err := r.coll.InsertOne(ctx, rec); err != nil {
		r.logger.Error("failed to create medication record",
			zap.Error(err),
			zap.String("record_id", rec.ID),
			zap.String("user_id", rec.UserID),
		)
		return fmt.Errorf("failed to create medication record: %w", err)
	}
	return nil
}

// FindByUserID retrieves all medication records of a user, newest first
func (r *MongoMedicationRepository) FindByUserID(ctx context.Context, userID string) ([]model.MedicationRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "name", Value: 1}})
	return r.find(ctx, bson.M{"userId": userID}, opts)
}

// FindByPrescription retrieves the records persisted from one prescription
func (r *MongoMedicationRepository) FindByPrescription(ctx context.Context, userID, prescriptionID string) ([]model.MedicationRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	return r.find(ctx, bson.M{"userId": userID, "prescriptionId": prescriptionID}, opts)
}

func (r *MongoMedicationRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]model.MedicationRecord, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("failed to find medication records", zap.Error(err))
		return nil, fmt.Errorf("failed to find medication records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []model.MedicationRecord
	if err := cursor.All(ctx, &records); err != nil {
		r.logger.Error("failed to decode medication records", zap.Error(err))
		return nil, fmt.Errorf("failed to decode medication records: %w", err)
	}

	return records, nil
}

// SetPrescriptionActive sets the active flag on every record of a prescription
// and returns the number of records matched
func (r *MongoMedicationRepository) SetPrescriptionActive(ctx context.Context, userID, prescriptionID string, active bool) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"userId": userID, "prescriptionId": prescriptionID},
		bson.M{"$set": bson.M{"active": active}},
	)
	if err != nil {
		r.logger.Error("failed to update prescription",
			zap.Error(err),
			zap.String("user_id", userID),
			zap.String("prescription_id", prescriptionID),
		)
		return 0, fmt.Errorf("failed to update prescription: %w", err)
	}
	return res.MatchedCount, nil
}

// DeletePrescription deletes every record of a prescription
func (r *MongoMedicationRepository) DeletePrescription(ctx context.Context, userID, prescriptionID string) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"userId": userID, "prescriptionId": prescriptionID})
	if err != nil {
		r.logger.Error("failed to delete prescription",
			zap.Error(err),
			zap.String("user_id", userID),
			zap.String("prescription_id", prescriptionID),
		)
		return 0, fmt.Errorf("failed to delete prescription: %w", err)
	}
	return res.DeletedCount, nil
}
